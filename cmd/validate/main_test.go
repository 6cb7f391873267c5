// SPDX-License-Identifier: MIT
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/embywatch/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
emby:
  url: http://emby.local:8096
  token: test-token
`)

	code, stdout, stderr := runCLI("-f", path)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "is valid") {
		t.Errorf("stdout = %q, want valid confirmation", stdout)
	}
}

func TestRun_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
emby:
  url: http://emby.local:8096
  token: test-token
unknownKey: true
`)

	code, _, stderr := runCLI("-f", path)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Configuration error") {
		t.Errorf("stderr = %q, want parse error report", stderr)
	}
}

func TestRun_MissingRequiredFields(t *testing.T) {
	t.Setenv(config.EnvEmbyURL, "")
	t.Setenv(config.EnvEmbyToken, "")

	path := writeConfig(t, `
poll:
  sessionInterval: 30s
`)

	code, _, stderr := runCLI("-f", path)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Configuration error") {
		t.Errorf("stderr = %q, want validation error report", stderr)
	}
}

func TestRun_MissingFileFlag(t *testing.T) {
	code, _, stderr := runCLI()
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
	if !strings.Contains(stderr, "--file is required") {
		t.Errorf("stderr = %q, want usage hint", stderr)
	}
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI("-version")
	if code != 0 {
		t.Fatalf("exit = %d, want 0", code)
	}
	if strings.TrimSpace(stdout) != Version {
		t.Errorf("stdout = %q, want %q", stdout, Version)
	}
}
