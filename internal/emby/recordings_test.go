package emby

import (
	"context"
	"testing"
	"time"
)

func recordingStamp(d time.Duration) string {
	return time.Now().UTC().Add(d).Format(time.RFC3339)
}

func TestRecordingsSplitsActiveAndScheduled(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetTimers([]Timer{
		{
			Id: "t-live", Name: "Live Now", ChannelName: "ORF1",
			Status:    "InProgress",
			StartDate: recordingStamp(-10 * time.Minute),
			EndDate:   recordingStamp(50 * time.Minute),
		},
		{
			Id: "t-window", Name: "In Window", ChannelName: "ORF2",
			StartDate: recordingStamp(-5 * time.Minute),
			EndDate:   recordingStamp(25 * time.Minute),
		},
		{
			Id: "t-future", Name: "Tonight", ChannelName: "ATV",
			StartDate: recordingStamp(3 * time.Hour),
			EndDate:   recordingStamp(4 * time.Hour),
		},
	})

	snap, err := c.Recordings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Active) != 2 {
		t.Fatalf("expected 2 active recordings, got %+v", snap.Active)
	}
	if snap.Active[0].Name != "Live Now" || snap.Active[1].Name != "In Window" {
		t.Fatalf("unexpected active set: %+v", snap.Active)
	}
	if len(snap.Scheduled) != 1 || snap.Scheduled[0].Name != "Tonight" {
		t.Fatalf("unexpected scheduled set: %+v", snap.Scheduled)
	}
}

func TestRecordingsPrefersProgramInfo(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetTimers([]Timer{
		{
			Id: "t-1", Name: "Timer Name", ChannelName: "Timer Channel",
			StartDate: recordingStamp(2 * time.Hour),
			EndDate:   recordingStamp(3 * time.Hour),
			ProgramInfo: &TimerProgram{
				Name:        "Program Name",
				ChannelName: "Program Channel",
				StartDate:   recordingStamp(2 * time.Hour),
				EndDate:     recordingStamp(3 * time.Hour),
			},
		},
	})

	snap, err := c.Recordings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// First pass records the program block, the second pass adds the timer
	// name because it differs.
	if len(snap.Scheduled) != 2 {
		t.Fatalf("expected both name variants, got %+v", snap.Scheduled)
	}
	if snap.Scheduled[0].Name != "Program Name" || snap.Scheduled[0].Channel != "Program Channel" {
		t.Fatalf("expected program block first: %+v", snap.Scheduled[0])
	}
	if snap.Scheduled[1].Name != "Timer Name" {
		t.Fatalf("expected timer name second: %+v", snap.Scheduled[1])
	}
}

func TestRecordingsMergesActiveBackup(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetTimers([]Timer{
		{
			Id: "t-live", Name: "Known Recording",
			Status:    "Recording",
			StartDate: recordingStamp(-10 * time.Minute),
			EndDate:   recordingStamp(20 * time.Minute),
		},
	})
	srv.SetActiveRecordings([]Timer{
		{Name: "Known Recording", ChannelName: "ORF1"},
		{Name: "Only In Backup", ChannelId: "c-9", StartDate: recordingStamp(-2 * time.Minute)},
	})

	snap, err := c.Recordings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Active) != 2 {
		t.Fatalf("expected merged active list, got %+v", snap.Active)
	}
	if snap.Active[1].Name != "Only In Backup" || snap.Active[1].Channel != "c-9" {
		t.Fatalf("expected channel id fallback for backup entry: %+v", snap.Active[1])
	}
}

func TestRecordingsSeriesDefaults(t *testing.T) {
	c, srv := newMockClient(t)
	anyTime := false
	anyChannel := true
	srv.SetSeriesTimers([]SeriesTimer{
		{Id: "sr-1", Name: "Every Tatort", ChannelName: "ORF2"},
		{Id: "sr-2", Name: "Explicit", ChannelId: "c-1", RecordAnyTime: &anyTime, RecordAnyChannel: &anyChannel},
	})

	snap, err := c.Recordings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Series) != 2 {
		t.Fatalf("expected 2 series rules, got %+v", snap.Series)
	}
	if !snap.Series[0].RecordAnyTime || snap.Series[0].RecordAnyChannel {
		t.Fatalf("expected defaults any-time=true any-channel=false: %+v", snap.Series[0])
	}
	if snap.Series[1].RecordAnyTime || !snap.Series[1].RecordAnyChannel {
		t.Fatalf("expected explicit flags to win: %+v", snap.Series[1])
	}
	if snap.Series[1].Channel != "c-1" {
		t.Fatalf("expected channel id fallback: %+v", snap.Series[1])
	}
}

func TestRecordingsSurvivesTimerFailure(t *testing.T) {
	c, srv := newMockClient(t)
	srv.SetFailures("/LiveTv/Timers", 1)
	srv.SetSeriesTimers([]SeriesTimer{{Id: "sr-1", Name: "Still There"}})

	snap, err := c.Recordings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Active) != 0 || len(snap.Scheduled) != 0 {
		t.Fatalf("expected empty recording lists, got %+v", snap)
	}
	if len(snap.Series) != 1 {
		t.Fatalf("expected series rules despite timer failure, got %+v", snap.Series)
	}
}
