package api

import (
	"testing"
	"time"

	"github.com/or7nge/sheet-music-transcriber/internal/jobs"
)

func TestFromSnapshotBuildsDownloadLinks(t *testing.T) {
	snap := jobs.Snapshot{
		ID:       "abc123",
		Filename: "score.png",
		Status:   "complete",
		Stage:    "complete",
		Progress: 1.0,
		Files: map[string]string{
			jobs.ArtifactMusicXML: "output.musicxml",
			jobs.ArtifactMIDI:     "output.mid",
			jobs.ArtifactPreview:  "preview.png",
		},
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	payload := FromSnapshot(snap)
	if payload.Downloads["midi"] != "/api/jobs/abc123/files/midi" {
		t.Fatalf("midi link = %q", payload.Downloads["midi"])
	}
	if payload.Downloads["musicxml"] != "/api/jobs/abc123/files/musicxml" {
		t.Fatalf("musicxml link = %q", payload.Downloads["musicxml"])
	}
	if _, ok := payload.Downloads["preview"]; ok {
		t.Fatal("preview must not appear in downloads")
	}
	if payload.PreviewURL != "/api/jobs/abc123/files/preview" {
		t.Fatalf("preview url = %q", payload.PreviewURL)
	}
	if payload.CreatedAt != "2025-06-01T12:00:00.000Z" {
		t.Fatalf("created_at = %q", payload.CreatedAt)
	}
}

func TestFromSnapshotWithoutArtifacts(t *testing.T) {
	payload := FromSnapshot(jobs.Snapshot{ID: "x", Status: "processing", Stage: "recognizing"})
	if len(payload.Downloads) != 0 {
		t.Fatalf("downloads = %v", payload.Downloads)
	}
	if payload.PreviewURL != "" {
		t.Fatalf("preview url = %q", payload.PreviewURL)
	}
	if payload.CreatedAt != "" {
		t.Fatalf("created_at = %q", payload.CreatedAt)
	}
}
