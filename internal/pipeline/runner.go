package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/or7nge/sheet-music-transcriber/internal/fileutil"
	"github.com/or7nge/sheet-music-transcriber/internal/jobs"
	"github.com/or7nge/sheet-music-transcriber/internal/logging"
	"github.com/or7nge/sheet-music-transcriber/internal/notation"
	"github.com/or7nge/sheet-music-transcriber/internal/pdf"
	"github.com/or7nge/sheet-music-transcriber/internal/services"
)

// Recognizer produces a MusicXML file from a sheet-music image.
type Recognizer interface {
	Available(ctx context.Context) bool
	Recognize(ctx context.Context, imagePath, outputDir string) (string, error)
}

const notInstalledMessage = "homr is not installed or not accessible. " +
	"Set HOMR_DIR to your homr folder or install homr with: " +
	"poetry install --only main && poetry run homr --init"

// Rasterizer renders the pages of a PDF into image files.
type Rasterizer func(pdfPath, outputDir string) ([]string, error)

// Runner drives one upload through the fixed stage sequence. It is safe for
// concurrent use; all per-job state lives on the stack.
type Runner struct {
	recognizer Recognizer
	rasterize  Rasterizer
	logger     *slog.Logger
}

// New returns a Runner backed by the given recognition engine.
func New(recognizer Recognizer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		recognizer: recognizer,
		rasterize:  pdf.Rasterize,
		logger:     logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// WithRasterizer sets a custom PDF rasterizer (for testing).
func (r *Runner) WithRasterizer(rasterize Rasterizer) {
	if rasterize != nil {
		r.rasterize = rasterize
	}
}

// Run executes the stage list for a job. Failures before packaging propagate
// to the caller except MIDI rendering, which degrades to a logged warning.
func (r *Runner) Run(ctx context.Context, job jobs.Job, emit func(jobs.Update)) (jobs.Result, error) {
	logger := logging.WithContext(ctx, r.logger)

	emit(jobs.Update{Stage: jobs.StageValidating, Progress: 0.04, Message: "Validating runtime dependencies", Log: "Checking homr availability"})
	if !r.recognizer.Available(ctx) {
		return jobs.Result{}, fmt.Errorf("%w: %s", services.ErrConfiguration, notInstalledMessage)
	}
	emit(jobs.Update{Stage: jobs.StageValidating, Progress: 0.08, Message: "Runtime dependencies ready"})

	emit(jobs.Update{Stage: jobs.StagePreparing, Progress: 0.1, Message: "Preparing input file"})
	emit(jobs.Update{Stage: jobs.StagePreparing, Progress: 0.16, Message: "Preparing input file"})

	processImage := job.UploadPath
	previewPath := job.UploadPath
	if strings.EqualFold(filepath.Ext(job.UploadPath), ".pdf") {
		emit(jobs.Update{Stage: jobs.StagePreparing, Progress: 0.22, Message: "Converting PDF pages"})
		pages, err := r.rasterize(job.UploadPath, job.Dir)
		if err != nil {
			return jobs.Result{}, err
		}
		processImage = pages[0]
		previewPath = pages[0]
		emit(jobs.Update{
			Stage:    jobs.StagePreparing,
			Progress: 0.3,
			Message:  "Preparing input file",
			Log:      fmt.Sprintf("Detected %d PDF page(s); processing page 1", len(pages)),
		})
	} else {
		emit(jobs.Update{Stage: jobs.StagePreparing, Progress: 0.24, Message: "Preparing input file"})
	}

	emit(jobs.Update{Stage: jobs.StageRecognizing, Progress: 0.34, Message: "Running optical music recognition"})
	emit(jobs.Update{Stage: jobs.StageRecognizing, Progress: 0.46, Message: "Running optical music recognition"})
	musicxmlPath, err := r.recognizer.Recognize(ctx, processImage, job.Dir)
	if err != nil {
		return jobs.Result{}, err
	}
	emit(jobs.Update{Stage: jobs.StageRecognizing, Progress: 0.62, Message: "Running optical music recognition"})

	emit(jobs.Update{Stage: jobs.StageConvertingABC, Progress: 0.68, Message: "Converting MusicXML to ABC"})
	abcText := notation.ABCFromFile(musicxmlPath)
	emit(jobs.Update{Stage: jobs.StageConvertingABC, Progress: 0.78, Message: "Converting MusicXML to ABC"})

	emit(jobs.Update{Stage: jobs.StageConvertingNotes, Progress: 0.8, Message: "Generating concise note sequence"})
	conciseText := notation.ConciseFromFile(musicxmlPath)
	emit(jobs.Update{Stage: jobs.StageConvertingNotes, Progress: 0.82, Message: "Generating concise note sequence"})

	emit(jobs.Update{Stage: jobs.StageConvertingMIDI, Progress: 0.83, Message: "Converting MusicXML to MIDI"})
	midiPath := filepath.Join(job.Dir, "score.mid")
	if err := renderMIDI(musicxmlPath, midiPath); err != nil {
		logger.Warn("midi conversion failed", logging.Error(err))
		emit(jobs.Update{Log: "MIDI conversion warning: " + err.Error()})
		midiPath = ""
	}
	emit(jobs.Update{Stage: jobs.StageConvertingMIDI, Progress: 0.9, Message: "Converting MusicXML to MIDI"})

	emit(jobs.Update{Stage: jobs.StagePackaging, Progress: 0.94, Message: "Packaging output files"})
	files, err := packageArtifacts(job.Dir, musicxmlPath, midiPath, previewPath, emit)
	if err != nil {
		return jobs.Result{}, err
	}

	logger.Info("pipeline stages complete", logging.Int("artifacts", len(files)))
	return jobs.Result{ABC: abcText, Concise: conciseText, Files: files}, nil
}

func renderMIDI(musicxmlPath, midiPath string) error {
	score, err := notation.ParseMusicXML(musicxmlPath)
	if err != nil {
		return err
	}
	return notation.RenderMIDI(score, midiPath)
}

// packageArtifacts copies the produced files into the job directory under
// canonical names, advancing progress proportionally to the artifact count.
func packageArtifacts(jobDir, musicxmlPath, midiPath, previewPath string, emit func(jobs.Update)) (map[string]string, error) {
	targets := 1
	if midiPath != "" {
		targets++
	}
	if previewPath != "" {
		targets++
	}
	step := 0.035 / float64(targets)
	progress := 0.955
	emit(jobs.Update{Stage: jobs.StagePackaging, Progress: progress, Message: "Packaging output files"})

	advance := func() {
		progress = min(0.99, progress+step)
		emit(jobs.Update{Stage: jobs.StagePackaging, Progress: progress, Message: "Packaging output files"})
	}

	files := make(map[string]string, targets)

	musicxmlTarget := filepath.Join(jobDir, "output.musicxml")
	if musicxmlPath != musicxmlTarget {
		if err := fileutil.CopyFile(musicxmlPath, musicxmlTarget); err != nil {
			return nil, fmt.Errorf("package musicxml: %w", err)
		}
	}
	files[jobs.ArtifactMusicXML] = "output.musicxml"
	advance()

	if midiPath != "" {
		midiTarget := filepath.Join(jobDir, "output.mid")
		if midiPath != midiTarget {
			if err := fileutil.CopyFile(midiPath, midiTarget); err != nil {
				return nil, fmt.Errorf("package midi: %w", err)
			}
		}
		files[jobs.ArtifactMIDI] = "output.mid"
		advance()
	}

	if previewPath != "" {
		ext := strings.ToLower(filepath.Ext(previewPath))
		if ext == "" {
			ext = ".jpg"
		}
		previewTarget := filepath.Join(jobDir, "preview"+ext)
		if previewPath != previewTarget {
			if err := fileutil.CopyFile(previewPath, previewTarget); err != nil {
				return nil, fmt.Errorf("package preview: %w", err)
			}
		}
		if _, err := os.Stat(previewTarget); err != nil {
			return nil, fmt.Errorf("package preview: %w", err)
		}
		files[jobs.ArtifactPreview] = filepath.Base(previewTarget)
		advance()
	}

	return files, nil
}
