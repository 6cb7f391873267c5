// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"

	"github.com/ManuGH/embywatch/internal/api"
	"github.com/ManuGH/embywatch/internal/emby"
	"github.com/ManuGH/embywatch/internal/log"
	"github.com/ManuGH/embywatch/internal/poll"
)

// libraryClient is the slice of *emby.Client the library poll needs.
type libraryClient interface {
	LatestMovies(ctx context.Context, limit int) ([]emby.MovieSummary, error)
	LatestEpisodes(ctx context.Context, limit int) ([]emby.EpisodeSummary, error)
	UpcomingEpisodes(ctx context.Context, limit int) ([]emby.EpisodeSummary, error)
}

// newLibraryFetch builds the fetch function for the library coordinator.
// The three sections fail independently: one broken view keeps the others
// usable. An authentication failure aborts immediately so the coordinator
// can latch, and only a run with no usable section at all counts as failed.
// limit is read per run, so a config reload applies without restarting.
func newLibraryFetch(client libraryClient, limit func() int) poll.FetchFunc[api.LibraryContent] {
	logger := log.WithComponent("library")

	return func(ctx context.Context) (api.LibraryContent, error) {
		n := limit()
		var (
			content  api.LibraryContent
			firstErr error
			failures int
		)

		section := func(name string, fetch func() error) error {
			err := fetch()
			if err == nil {
				return nil
			}
			if errors.Is(err, emby.ErrAuth) {
				return err
			}
			failures++
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn().
				Err(err).
				Str("event", "library.section_failed").
				Str("section", name).
				Msg("library section fetch failed, keeping the rest")
			return nil
		}

		if err := section("movies", func() error {
			movies, err := client.LatestMovies(ctx, n)
			if err == nil {
				content.Movies = movies
			}
			return err
		}); err != nil {
			return api.LibraryContent{}, err
		}

		if err := section("episodes", func() error {
			episodes, err := client.LatestEpisodes(ctx, n)
			if err == nil {
				content.Episodes = episodes
			}
			return err
		}); err != nil {
			return api.LibraryContent{}, err
		}

		if err := section("upcoming", func() error {
			upcoming, err := client.UpcomingEpisodes(ctx, n)
			if err == nil {
				content.Upcoming = upcoming
			}
			return err
		}); err != nil {
			return api.LibraryContent{}, err
		}

		if failures == 3 {
			return api.LibraryContent{}, firstErr
		}
		return content, nil
	}
}
