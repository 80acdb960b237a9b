package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/or7nge/sheet-music-transcriber/internal/config"
	"github.com/or7nge/sheet-music-transcriber/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.JobsDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Uploads.MaxUploadMB = 1
	return &cfg
}

func testStore(t *testing.T, cfg *config.Config) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(cfg.Paths.JobsDir, "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func noopRunner() Runner {
	return RunnerFunc(func(ctx context.Context, job Job, emit func(Update)) (Result, error) {
		return Result{}, nil
	})
}

func TestSubmitRejectsUnsupportedExtension(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg, testStore(t, cfg), noopRunner(), logging.NewNop())

	_, err := m.Submit(context.Background(), "score.tiff", strings.NewReader("data"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSubmitEnforcesSizeCap(t *testing.T) {
	cfg := testConfig(t)
	m := NewManager(cfg, testStore(t, cfg), noopRunner(), logging.NewNop())

	oversized := strings.NewReader(strings.Repeat("x", 1024*1024+1))
	_, err := m.Submit(context.Background(), "big.png", oversized)
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("expected ErrUploadTooLarge, got %v", err)
	}

	// The aborted upload must not leave a job directory behind.
	entries, err := os.ReadDir(cfg.Paths.JobsDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			t.Fatalf("leftover job directory %s", entry.Name())
		}
	}
}

func TestSubmitRunsPipelineToCompletion(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)

	runner := RunnerFunc(func(ctx context.Context, job Job, emit func(Update)) (Result, error) {
		emit(Update{Stage: StageValidating, Progress: 0.04, Message: "Validating upload"})
		emit(Update{Stage: StageRecognizing, Progress: 0.5, Message: "Running homr"})
		if err := os.WriteFile(filepath.Join(job.Dir, "output.musicxml"), []byte("<x/>"), 0o644); err != nil {
			return Result{}, err
		}
		return Result{
			ABC:     "X:1",
			Concise: "C4:1/4",
			Files:   map[string]string{ArtifactMusicXML: "output.musicxml"},
		}, nil
	})
	m := NewManager(cfg, store, runner, logging.NewNop())

	snap, err := m.Submit(context.Background(), "Étude No. 1.png", strings.NewReader("fake image"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap.Status != "queued" || snap.Stage != string(StageQueued) {
		t.Fatalf("initial snapshot = %s/%s", snap.Status, snap.Stage)
	}

	m.Wait()

	final, err := m.Get(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != "complete" {
		t.Fatalf("status = %q, want complete (error=%q)", final.Status, final.Error)
	}
	if final.Progress != 1.0 {
		t.Fatalf("progress = %v, want 1.0", final.Progress)
	}
	if final.ABC != "X:1" || final.Concise != "C4:1/4" {
		t.Fatalf("result text not recorded: abc=%q concise=%q", final.ABC, final.Concise)
	}
	if _, ok := final.Files[ArtifactMusicXML]; !ok {
		t.Fatalf("musicxml artifact missing from files map: %v", final.Files)
	}
	if len(final.Logs) == 0 {
		t.Fatal("expected trace log entries")
	}
	for _, line := range final.Logs {
		if !strings.HasPrefix(line, "[") || !strings.Contains(line, "] ") {
			t.Fatalf("log line missing timestamp prefix: %q", line)
		}
	}

	art, err := m.Artifact(context.Background(), snap.ID, ArtifactMusicXML)
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if art.Name != "Etude_No._1.musicxml" {
		t.Fatalf("download name = %q", art.Name)
	}
	if art.Inline {
		t.Fatal("musicxml should be served as attachment")
	}
}

func TestPipelineErrorMarksJob(t *testing.T) {
	cfg := testConfig(t)
	runner := RunnerFunc(func(ctx context.Context, job Job, emit func(Update)) (Result, error) {
		emit(Update{Stage: StageRecognizing, Progress: 0.4, Message: "Running homr"})
		return Result{}, errors.New("homr processing failed: Exception: bad weights")
	})
	m := NewManager(cfg, testStore(t, cfg), runner, logging.NewNop())

	snap, err := m.Submit(context.Background(), "score.jpg", strings.NewReader("img"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Wait()

	final, err := m.Get(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != "error" {
		t.Fatalf("status = %q, want error", final.Status)
	}
	if final.Progress != 1.0 {
		t.Fatalf("progress = %v, want 1.0", final.Progress)
	}
	if !strings.Contains(final.Error, "bad weights") {
		t.Fatalf("error = %q", final.Error)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	m := NewManager(cfg, store, noopRunner(), logging.NewNop())

	now := time.Now().UTC()
	job := &Job{
		ID:        "fixed",
		Stage:     StageRecognizing,
		Progress:  0.5,
		Files:     map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Put(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	// A late or repeated emission must never move progress backwards.
	if err := m.applyUpdate(context.Background(), "fixed", Update{Progress: 0.3, Message: "stale"}); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(context.Background(), "fixed")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 0.5 {
		t.Fatalf("progress regressed to %v", got.Progress)
	}

	if err := m.applyUpdate(context.Background(), "fixed", Update{Progress: 0.8}); err != nil {
		t.Fatal(err)
	}
	got, err = m.Get(context.Background(), "fixed")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 0.8 {
		t.Fatalf("progress = %v, want 0.8", got.Progress)
	}
}

func TestRepeatedMessageIsNotLoggedTwice(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	m := NewManager(cfg, store, noopRunner(), logging.NewNop())

	now := time.Now().UTC()
	job := &Job{ID: "dedup", Stage: StageRecognizing, Files: map[string]string{}, CreatedAt: now, UpdatedAt: now}
	if err := store.Put(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	for range 3 {
		if err := m.applyUpdate(context.Background(), "dedup", Update{Progress: 0.4, Message: "Running homr"}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := m.Get(context.Background(), "dedup")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Logs) != 1 {
		t.Fatalf("logs = %v, want single entry", got.Logs)
	}
}

func TestEvictStaleRemovesRowAndDirectory(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	m := NewManager(cfg, store, noopRunner(), logging.NewNop())

	staleDir := filepath.Join(cfg.Paths.JobsDir, "stale-job")
	if err := os.MkdirAll(staleDir, 0o700); err != nil {
		t.Fatal(err)
	}
	old := time.Now().UTC().Add(-13 * time.Hour)
	stale := &Job{ID: "stale-job", Dir: staleDir, Stage: StageComplete, Files: map[string]string{}, CreatedAt: old, UpdatedAt: old}
	fresh := &Job{ID: "fresh-job", Stage: StageComplete, Files: map[string]string{}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	for _, job := range []*Job{stale, fresh} {
		if err := store.Put(context.Background(), job); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.EvictStale(context.Background()); err != nil {
		t.Fatalf("EvictStale: %v", err)
	}

	if _, err := m.Get(context.Background(), "stale-job"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("stale job still present: %v", err)
	}
	if _, err := os.Stat(staleDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("stale job directory still present")
	}
	if _, err := m.Get(context.Background(), "fresh-job"); err != nil {
		t.Fatalf("fresh job evicted: %v", err)
	}
}

func TestArtifactForMissingKind(t *testing.T) {
	cfg := testConfig(t)
	store := testStore(t, cfg)
	m := NewManager(cfg, store, noopRunner(), logging.NewNop())

	now := time.Now().UTC()
	job := &Job{ID: "bare", Stage: StageComplete, Files: map[string]string{}, CreatedAt: now, UpdatedAt: now}
	if err := store.Put(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Artifact(context.Background(), "bare", ArtifactMIDI); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not-found for missing artifact, got %v", err)
	}
}

func TestSnapshotRoundsProgress(t *testing.T) {
	j := &Job{Progress: 0.123456}
	if got := j.Snapshot().Progress; got != 0.1235 {
		t.Fatalf("progress = %v, want 0.1235", got)
	}
}

func TestSupportedExtension(t *testing.T) {
	cases := map[string]bool{
		"a.jpg":  true,
		"a.JPEG": true,
		"a.png":  true,
		"a.pdf":  true,
		"a.gif":  false,
		"a":      false,
	}
	for name, want := range cases {
		if got := SupportedExtension(name); got != want {
			t.Fatalf("SupportedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}
