package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/or7nge/sheet-music-transcriber/internal/config"
	"github.com/or7nge/sheet-music-transcriber/internal/fileutil"
	"github.com/or7nge/sheet-music-transcriber/internal/logging"
	"github.com/or7nge/sheet-music-transcriber/internal/services"
)

// ErrUnsupportedFormat indicates the upload extension is not accepted.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrUploadTooLarge indicates the upload exceeded the configured byte cap.
var ErrUploadTooLarge = errors.New("upload exceeds the size limit")

var allowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"pdf":  {},
}

// SupportedExtension reports whether the filename carries an accepted
// extension.
func SupportedExtension(filename string) bool {
	_, ok := allowedExtensions[normalizeExt(filename)]
	return ok
}

func normalizeExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Artifact points at a stored output file and how to serve it.
type Artifact struct {
	Path   string
	Name   string
	Inline bool
}

// Manager owns the job registry. All record mutations flow through its
// mutex so concurrent pipeline updates and API reads stay consistent.
type Manager struct {
	cfg    *config.Config
	store  *Store
	runner Runner
	logger *slog.Logger

	mu  sync.Mutex
	wg  sync.WaitGroup
	now func() time.Time
}

// NewManager wires the registry to its store and pipeline runner.
func NewManager(cfg *config.Config, store *Store, runner Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		runner: runner,
		logger: logger.With(logging.String(logging.FieldComponent, "jobs")),
		now:    time.Now,
	}
}

// Submit accepts an upload, persists the queued record, and starts the
// pipeline in the background. The returned snapshot reflects the queued
// state.
func (m *Manager) Submit(ctx context.Context, filename string, r io.Reader) (Snapshot, error) {
	ext := normalizeExt(filename)
	if _, ok := allowedExtensions[ext]; !ok {
		return Snapshot{}, fmt.Errorf("%w: .%s (supported: jpg, jpeg, png, pdf)", ErrUnsupportedFormat, ext)
	}

	if err := m.EvictStale(ctx); err != nil {
		m.logger.Warn("stale job sweep failed", logging.Error(err))
	}

	id := uuid.NewString()
	dir := filepath.Join(m.cfg.Paths.JobsDir, id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Snapshot{}, fmt.Errorf("create job directory: %w", err)
	}

	uploadPath := filepath.Join(dir, "upload."+ext)
	if err := m.writeCapped(uploadPath, r); err != nil {
		_ = os.RemoveAll(dir)
		return Snapshot{}, err
	}

	now := m.now().UTC()
	job := &Job{
		ID:           id,
		OriginalName: filename,
		Stem:         fileutil.Stem(fileutil.SanitizeFilename(filename)),
		Dir:          dir,
		UploadPath:   uploadPath,
		Stage:        StageQueued,
		Message:      "Queued for processing",
		Files:        map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	appendLog(job, now, job.Message)

	if err := m.store.Put(ctx, job); err != nil {
		_ = os.RemoveAll(dir)
		return Snapshot{}, err
	}

	m.wg.Add(1)
	go m.run(job.clone())

	m.logger.Info("job accepted",
		logging.String(logging.FieldJobID, id),
		logging.String("filename", filename))
	return job.Snapshot(), nil
}

// writeCapped streams the upload to disk, aborting once the byte cap is
// crossed so oversized bodies never land in full.
func (m *Manager) writeCapped(path string, r io.Reader) error {
	limit := m.cfg.MaxUploadBytes()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(dst, io.LimitReader(r, limit+1))
	closeErr := dst.Close()
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write upload: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close upload file: %w", closeErr)
	}
	if written > limit {
		_ = os.Remove(path)
		return fmt.Errorf("%w: limit is %d MB", ErrUploadTooLarge, m.cfg.Uploads.MaxUploadMB)
	}
	return nil
}

func (m *Manager) run(job *Job) {
	defer m.wg.Done()

	ctx := services.WithJobID(context.Background(), job.ID)
	logger := m.logger.With(logging.String(logging.FieldJobID, job.ID))
	logger.Info("pipeline started", logging.String("upload", job.UploadPath))

	result, err := m.runner.Run(ctx, *job, func(u Update) {
		if applyErr := m.applyUpdate(ctx, job.ID, u); applyErr != nil {
			logger.Warn("progress update failed", logging.Error(applyErr))
		}
	})
	if err != nil {
		logger.Error("pipeline failed", logging.Error(err))
		m.finalize(ctx, job.ID, func(j *Job) {
			j.Stage = StageError
			j.Progress = 1.0
			j.Message = "Transcription failed"
			j.Error = err.Error()
			appendLog(j, m.now(), "ERROR: "+err.Error())
		})
		return
	}

	logger.Info("pipeline complete", logging.Int("artifacts", len(result.Files)))
	m.finalize(ctx, job.ID, func(j *Job) {
		j.Stage = StageComplete
		j.Progress = 1.0
		j.Message = "Transcription complete"
		j.ABC = result.ABC
		j.Concise = result.Concise
		for kind, rel := range result.Files {
			j.Files[kind] = rel
		}
		appendLog(j, m.now(), "Outputs are ready for download")
	})
}

func (m *Manager) finalize(ctx context.Context, id string, mutate func(*Job)) {
	if err := m.apply(ctx, id, mutate); err != nil {
		m.logger.Error("finalize failed",
			logging.String(logging.FieldJobID, id),
			logging.Error(err))
	}
}

// apply performs a read-modify-write of the whole record under the mutex.
func (m *Manager) apply(ctx context.Context, id string, mutate func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	mutate(job)
	job.UpdatedAt = m.now().UTC()
	return m.store.Put(ctx, job)
}

func (m *Manager) applyUpdate(ctx context.Context, id string, u Update) error {
	return m.apply(ctx, id, func(j *Job) {
		if j.Stage.Terminal() {
			return
		}
		if u.Stage != "" {
			j.Stage = u.Stage
		}
		if u.Progress > j.Progress {
			j.Progress = min(u.Progress, 1.0)
		}
		if u.Message != "" && u.Message != j.Message {
			j.Message = u.Message
			appendLog(j, m.now(), u.Message)
		}
		if u.Log != "" {
			appendLog(j, m.now(), u.Log)
		}
	})
}

// appendLog records a timestamped trace line, skipping immediate repeats.
func appendLog(j *Job, at time.Time, text string) {
	if text == "" {
		return
	}
	if n := len(j.Logs); n > 0 && strings.HasSuffix(j.Logs[n-1], "] "+text) {
		return
	}
	j.Logs = append(j.Logs, fmt.Sprintf("[%s] %s", at.Format("15:04:05"), text))
}

// Get returns a point-in-time snapshot of the job.
func (m *Manager) Get(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// Artifact resolves a stored output file and its suggested download name.
func (m *Manager) Artifact(ctx context.Context, id, kind string) (Artifact, error) {
	m.mu.Lock()
	job, err := m.store.Get(ctx, id)
	m.mu.Unlock()
	if err != nil {
		return Artifact{}, err
	}

	rel, ok := job.Files[kind]
	if !ok {
		return Artifact{}, fmt.Errorf("%w: no %s artifact for job %s", ErrJobNotFound, kind, id)
	}
	path := filepath.Join(job.Dir, rel)
	if _, err := os.Stat(path); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s artifact missing on disk", ErrJobNotFound, kind)
	}

	switch kind {
	case ArtifactMIDI:
		return Artifact{Path: path, Name: job.Stem + ".mid"}, nil
	case ArtifactMusicXML:
		return Artifact{Path: path, Name: job.Stem + ".musicxml"}, nil
	case ArtifactPreview:
		return Artifact{Path: path, Name: filepath.Base(path), Inline: true}, nil
	default:
		return Artifact{}, fmt.Errorf("%w: unknown artifact kind %q", ErrJobNotFound, kind)
	}
}

// EvictStale removes jobs idle beyond the retention window. The registry
// row is deleted before the directory so a crash cannot leave a record
// pointing at missing files.
func (m *Manager) EvictStale(ctx context.Context) error {
	cutoff := m.now().UTC().Add(-m.cfg.JobTTL())

	m.mu.Lock()
	defer m.mu.Unlock()

	stale, err := m.store.Stale(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, job := range stale {
		if err := m.store.Delete(ctx, job.ID); err != nil {
			return err
		}
		if job.Dir != "" {
			if err := os.RemoveAll(job.Dir); err != nil {
				m.logger.Warn("remove evicted job directory",
					logging.String(logging.FieldJobID, job.ID),
					logging.Error(err))
			}
		}
		m.logger.Info("evicted stale job", logging.String(logging.FieldJobID, job.ID))
	}
	return nil
}

// ActiveCount reports how many jobs are currently processing.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	return m.store.ActiveCount(ctx)
}

// Wait blocks until all in-flight pipelines have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
