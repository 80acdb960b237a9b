package jobs

import (
	"context"
	"math"
	"time"
)

// Stage represents the lifecycle of a transcription job.
type Stage string

const (
	StageQueued          Stage = "queued"
	StageValidating      Stage = "validating"
	StagePreparing       Stage = "preparing"
	StageRecognizing     Stage = "recognizing"
	StageConvertingABC   Stage = "converting_abc"
	StageConvertingNotes Stage = "converting_notes"
	StageConvertingMIDI  Stage = "converting_midi"
	StagePackaging       Stage = "packaging"
	StageComplete        Stage = "complete"
	StageError           Stage = "error"
)

var allStages = []Stage{
	StageQueued,
	StageValidating,
	StagePreparing,
	StageRecognizing,
	StageConvertingABC,
	StageConvertingNotes,
	StageConvertingMIDI,
	StagePackaging,
	StageComplete,
	StageError,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// Terminal reports whether the stage is a final state.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Artifact kinds stored in a job's files map.
const (
	ArtifactMIDI     = "midi"
	ArtifactMusicXML = "musicxml"
	ArtifactPreview  = "preview"
)

// Job is the persisted record for a single transcription request.
type Job struct {
	ID           string
	OriginalName string
	Stem         string
	Dir          string
	UploadPath   string
	Stage        Stage
	Progress     float64
	Message      string
	Error        string
	ABC          string
	Concise      string
	// Files maps artifact kinds to paths relative to Dir.
	Files     map[string]string
	Logs      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status collapses the stage into the coarse processing state clients poll on.
func (j *Job) Status() string {
	switch j.Stage {
	case StageQueued:
		return "queued"
	case StageComplete:
		return "complete"
	case StageError:
		return "error"
	default:
		return "processing"
	}
}

// Snapshot is the point-in-time client view of a job. Transport encoding
// lives in the api package.
type Snapshot struct {
	ID        string
	Filename  string
	Status    string
	Stage     string
	Progress  float64
	Message   string
	Error     string
	ABC       string
	Concise   string
	Logs      []string
	Files     map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot copies the job into its client view. Progress is rounded to four
// decimal places so polling output stays stable.
func (j *Job) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        j.ID,
		Filename:  j.OriginalName,
		Status:    j.Status(),
		Stage:     string(j.Stage),
		Progress:  math.Round(j.Progress*10000) / 10000,
		Message:   j.Message,
		Error:     j.Error,
		ABC:       j.ABC,
		Concise:   j.Concise,
		Logs:      append([]string(nil), j.Logs...),
		Files:     make(map[string]string, len(j.Files)),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	for kind, rel := range j.Files {
		snap.Files[kind] = rel
	}
	return snap
}

func (j *Job) clone() *Job {
	dup := *j
	dup.Logs = append([]string(nil), j.Logs...)
	dup.Files = make(map[string]string, len(j.Files))
	for kind, rel := range j.Files {
		dup.Files[kind] = rel
	}
	return &dup
}

// Update is a progress emission from the pipeline.
type Update struct {
	Stage    Stage
	Progress float64
	Message  string
	// Log carries an extra trace line appended regardless of message dedup.
	Log string
}

// Result is the pipeline's final output for a job.
type Result struct {
	ABC     string
	Concise string
	// Files maps artifact kinds to paths relative to the job directory.
	Files map[string]string
}

// Runner executes the transcription pipeline for an uploaded file.
type Runner interface {
	Run(ctx context.Context, job Job, emit func(Update)) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, job Job, emit func(Update)) (Result, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, job Job, emit func(Update)) (Result, error) {
	return f(ctx, job, emit)
}
