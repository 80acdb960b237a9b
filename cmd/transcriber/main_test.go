package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/or7nge/sheet-music-transcriber/internal/api"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Fatalf("output = %q", out)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[engine]") {
		t.Fatalf("sample missing engine section: %s", data)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error without --overwrite")
	}
}

func TestHealthCommandRendersTable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(api.HealthResponse{
			Status:        "ok",
			HomrAvailable: true,
			MaxUploadMB:   40,
			ActiveJobs:    2,
		})
	}))
	defer ts.Close()

	out, err := runCommand(t, "health", "--server", ts.URL)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	for _, want := range []string{"ok", "true", "40", "2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowCommandPrintsJob(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.JobResponse{Job: api.Job{
			ID:       "job-1",
			Filename: "score.png",
			Status:   "complete",
			Stage:    "complete",
			Progress: 1.0,
			Message:  "Transcription complete",
			Downloads: map[string]string{
				"musicxml": "/api/jobs/job-1/files/musicxml",
			},
			Log: []string{"[12:00:00] Queued for processing"},
		}})
	}))
	defer ts.Close()

	out, err := runCommand(t, "show", "job-1", "--server", ts.URL, "--log")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"job-1", "score.png", "complete", "100.0%", "musicxml", "Queued for processing"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowCommandSurfacesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Detail: "Job not found"})
	}))
	defer ts.Close()

	_, err := runCommand(t, "show", "missing", "--server", ts.URL)
	if err == nil || !strings.Contains(err.Error(), "Job not found") {
		t.Fatalf("err = %v", err)
	}
}
