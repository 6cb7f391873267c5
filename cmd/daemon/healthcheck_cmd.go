package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ManuGH/embywatch/internal/platform/httpx"
)

// runHealthcheckCLI probes the running daemon's health endpoints. Meant as a
// Docker HEALTHCHECK so the image does not need curl.
func runHealthcheckCLI(args []string) int {
	fs := flag.NewFlagSet("healthcheck", flag.ExitOnError)
	mode := fs.String("mode", "ready", "healthcheck mode: ready (default) or live")
	addr := fs.String("addr", "localhost:8090", "API address to check")
	timeout := fs.Duration("timeout", 5*time.Second, "check timeout")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing healthcheck flags: %v\n", err)
		return 1
	}

	path := "/healthz"
	if *mode == "ready" {
		path = "/readyz"
	}

	url := fmt.Sprintf("http://%s%s", *addr, path)
	client := httpx.NewClient(*timeout)

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (network): %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Healthcheck failed (status): %d %s\n", resp.StatusCode, resp.Status)
		return 1
	}

	fmt.Printf("Healthcheck successful (%s)\n", *mode)
	return 0
}
