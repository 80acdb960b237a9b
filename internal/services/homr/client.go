package homr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/or7nge/sheet-music-transcriber/internal/enhance"
	"github.com/or7nge/sheet-music-transcriber/internal/fileutil"
	"github.com/or7nge/sheet-music-transcriber/internal/logging"
	"github.com/or7nge/sheet-music-transcriber/internal/services"
)

// OutputName is the canonical MusicXML artifact name inside a job directory.
const OutputName = "score.musicxml"

const unknownErrorText = "Unknown homr error"

// staffDetectionMarkers identify failures where the engine never located the
// staff structure at all; only these trigger the enhancement retry.
var staffDetectionMarkers = []string{
	"no staffs found",
	"no noteheads found",
	"found 0 staffs",
	"found 0 staff anchors",
}

var (
	// ErrTimeout marks an engine run that exceeded its time budget.
	ErrTimeout = errors.New("homr timed out while processing the score")
	// ErrMissingOutput marks a run that exited cleanly without writing MusicXML.
	ErrMissingOutput = errors.New("homr finished but no MusicXML file was generated")
)

// EngineError reports a failed recognition with the extracted diagnostics.
// RetryDetail is set when the enhancement retry also failed.
type EngineError struct {
	Detail      string
	RetryDetail string
}

func (e *EngineError) Error() string {
	if e.RetryDetail != "" {
		return fmt.Sprintf(
			"homr could not detect enough notation structure after one enhancement retry. "+
				"Try a straighter, higher-resolution crop where staff lines and noteheads are clear. "+
				"First attempt: %s. Retry: %s",
			e.Detail, e.RetryDetail,
		)
	}
	return fmt.Sprintf("homr processing failed: %s", e.Detail)
}

// Config captures runtime settings for homr invocations.
type Config struct {
	// Dir is the homr working directory (a poetry project checkout).
	Dir string
	// PoetryCommand overrides the poetry binary name.
	PoetryCommand string
	// Timeout bounds one engine run.
	Timeout time.Duration
	// AvailabilityTimeout bounds the --help reachability probe.
	AvailabilityTimeout time.Duration
	// Enhance holds the retry enhancement parameters.
	Enhance enhance.Options
}

func (c Config) normalized() Config {
	if c.PoetryCommand == "" {
		c.PoetryCommand = "poetry"
	}
	if c.Timeout <= 0 {
		c.Timeout = 180 * time.Second
	}
	if c.AvailabilityTimeout <= 0 {
		c.AvailabilityTimeout = 15 * time.Second
	}
	return c
}

// CommandResult is one finished engine invocation: combined output plus the
// process exit code.
type CommandResult struct {
	Output   string
	ExitCode int
}

// CommandRunner executes one external command to completion. The returned
// error is reserved for launch failures and timeouts; a nonzero exit is
// reported through CommandResult.ExitCode instead.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (CommandResult, error)

// Client invokes the homr OMR engine as a bounded subprocess and implements
// the single-retry-with-enhancement policy for staff detection failures.
type Client struct {
	cfg    Config
	logger *slog.Logger
	run    CommandRunner
}

// New creates a homr client with the given configuration.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{cfg: cfg.normalized(), logger: logger, run: runCommand}
}

// WithCommandRunner sets a custom command runner (for testing).
func (c *Client) WithCommandRunner(run CommandRunner) {
	if run != nil {
		c.run = run
	}
}

// Available reports whether homr is callable from the configured directory.
func (c *Client) Available(ctx context.Context) bool {
	if _, err := os.Stat(c.cfg.Dir); err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.AvailabilityTimeout)
	defer cancel()

	res, err := c.run(probeCtx, c.cfg.Dir, c.cfg.PoetryCommand, "run", "homr", "--help")
	return err == nil && res.ExitCode == 0
}

// Recognize runs homr on the image and returns the path of the MusicXML
// artifact copied into outputDir. A first-attempt staff detection failure is
// retried exactly once against an enhanced render of the image; every other
// failure surfaces immediately with its diagnostic.
func (c *Client) Recognize(ctx context.Context, imagePath, outputDir string) (string, error) {
	if _, err := os.Stat(c.cfg.Dir); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "recognizing", "homr",
			fmt.Sprintf("homr directory not found: %s", c.cfg.Dir), nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	processed := imagePath
	result, err := c.invoke(ctx, processed)
	if err != nil {
		return "", err
	}

	if result.ExitCode != 0 {
		details := extractDetails(result.Output)
		if !isStaffDetectionFailure(details) {
			return "", services.Wrap(services.ErrExternalTool, "recognizing", "homr", "",
				&EngineError{Detail: summarizeError(details)})
		}

		c.logger.Info("staff detection failed, retrying with enhanced image",
			logging.String("image", filepath.Base(imagePath)))

		retryImage, enhanceErr := enhance.PrepareRetryImage(imagePath, outputDir, c.cfg.Enhance)
		if enhanceErr != nil {
			return "", services.Wrap(services.ErrExternalTool, "recognizing", "homr", "", enhanceErr)
		}

		retryResult, retryErr := c.invoke(ctx, retryImage)
		if retryErr != nil {
			return "", retryErr
		}
		if retryResult.ExitCode != 0 {
			retryDetails := extractDetails(retryResult.Output)
			return "", services.Wrap(services.ErrExternalTool, "recognizing", "homr", "",
				&EngineError{Detail: summarizeError(details), RetryDetail: summarizeError(retryDetails)})
		}

		processed = retryImage
	}

	generated := strings.TrimSuffix(processed, filepath.Ext(processed)) + ".musicxml"
	if _, err := os.Stat(generated); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "recognizing", "homr", "", ErrMissingOutput)
	}

	dest := filepath.Join(outputDir, OutputName)
	if generated != dest {
		if err := fileutil.CopyFile(generated, dest); err != nil {
			return "", fmt.Errorf("copy musicxml artifact: %w", err)
		}
	}
	return dest, nil
}

func (c *Client) invoke(ctx context.Context, imagePath string) (CommandResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	result, err := c.run(runCtx, c.cfg.Dir, c.cfg.PoetryCommand, "run", "homr", imagePath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return result, services.Wrap(services.ErrTimeout, "recognizing", "homr", "", ErrTimeout)
		}
		// Parent cancellation (daemon shutdown) is not an engine timeout.
		if errors.Is(err, context.Canceled) {
			return result, err
		}
		return result, services.Wrap(services.ErrConfiguration, "recognizing", "homr",
			fmt.Sprintf("launch %s", c.cfg.PoetryCommand), err)
	}
	return result, nil
}

func runCommand(ctx context.Context, dir, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	result := CommandResult{Output: string(output)}
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}

func extractDetails(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return unknownErrorText
	}
	return trimmed
}

func summarizeError(details string) string {
	lines := strings.Split(details, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(strings.ToLower(line), "exception:") {
			return line
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return unknownErrorText
}

func isStaffDetectionFailure(details string) bool {
	lower := strings.ToLower(details)
	for _, marker := range staffDetectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
