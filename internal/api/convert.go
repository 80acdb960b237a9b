package api

import (
	"fmt"
	"time"

	"github.com/or7nge/sheet-music-transcriber/internal/jobs"
)

// FromSnapshot converts a registry snapshot into its transport payload,
// materializing download links for the artifacts that exist.
func FromSnapshot(snap jobs.Snapshot) Job {
	downloads := make(map[string]string, 2)
	for _, kind := range []string{jobs.ArtifactMIDI, jobs.ArtifactMusicXML} {
		if _, ok := snap.Files[kind]; ok {
			downloads[kind] = artifactURL(snap.ID, kind)
		}
	}

	payload := Job{
		ID:          snap.ID,
		Filename:    snap.Filename,
		Status:      snap.Status,
		Stage:       snap.Stage,
		Progress:    snap.Progress,
		Message:     snap.Message,
		Error:       snap.Error,
		ABCText:     snap.ABC,
		ConciseText: snap.Concise,
		Downloads:   downloads,
		Log:         snap.Logs,
		CreatedAt:   formatTime(snap.CreatedAt),
		UpdatedAt:   formatTime(snap.UpdatedAt),
	}
	if _, ok := snap.Files[jobs.ArtifactPreview]; ok {
		payload.PreviewURL = artifactURL(snap.ID, jobs.ArtifactPreview)
	}
	return payload
}

func artifactURL(id, kind string) string {
	return fmt.Sprintf("/api/jobs/%s/files/%s", id, kind)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
