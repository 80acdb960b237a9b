package homr

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/or7nge/sheet-music-transcriber/internal/services"
)

type fakeRun struct {
	result CommandResult
	err    error
	// sibling, when set, writes a MusicXML file beside the image argument
	// before returning, imitating the engine's output behavior.
	sibling string
}

// scriptRunner plays back canned invocation results in order and records the
// image path of each engine call.
func scriptRunner(t *testing.T, runs []fakeRun, calls *[]string) CommandRunner {
	t.Helper()
	index := 0
	return func(ctx context.Context, dir, name string, args ...string) (CommandResult, error) {
		if index >= len(runs) {
			t.Fatalf("unexpected invocation %d: %s %v", index, name, args)
		}
		run := runs[index]
		index++

		image := args[len(args)-1]
		*calls = append(*calls, image)
		if run.sibling != "" {
			path := strings.TrimSuffix(image, filepath.Ext(image)) + ".musicxml"
			if err := os.WriteFile(path, []byte(run.sibling), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		return run.result, run.err
	}
}

func newTestClient(t *testing.T, runs []fakeRun, calls *[]string) (*Client, string, string) {
	t.Helper()
	engineDir := t.TempDir()
	outputDir := t.TempDir()

	client := New(Config{Dir: engineDir}, nil)
	client.WithCommandRunner(scriptRunner(t, runs, calls))
	return client, engineDir, outputDir
}

func writeInputImage(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	path := filepath.Join(dir, "input.png")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecognizeFirstAttemptSuccess(t *testing.T) {
	var calls []string
	client, _, outputDir := newTestClient(t, []fakeRun{
		{result: CommandResult{ExitCode: 0}, sibling: "<score-partwise/>"},
	}, &calls)
	input := writeInputImage(t, t.TempDir())

	path, err := client.Recognize(context.Background(), input, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(outputDir, OutputName) {
		t.Errorf("artifact path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<score-partwise/>" {
		t.Errorf("artifact content = %q", data)
	}
	if len(calls) != 1 {
		t.Errorf("engine invoked %d times, want 1", len(calls))
	}
}

func TestRecognizeMissingOutputIsFatal(t *testing.T) {
	var calls []string
	client, _, outputDir := newTestClient(t, []fakeRun{
		{result: CommandResult{ExitCode: 0}},
	}, &calls)
	input := writeInputImage(t, t.TempDir())

	_, err := client.Recognize(context.Background(), input, outputDir)
	if !errors.Is(err, ErrMissingOutput) {
		t.Fatalf("expected ErrMissingOutput, got %v", err)
	}
}

func TestRecognizeNoRetryForOtherFailures(t *testing.T) {
	var calls []string
	client, _, outputDir := newTestClient(t, []fakeRun{
		{result: CommandResult{ExitCode: 1, Output: "Traceback\nException: model weights missing"}},
	}, &calls)
	input := writeInputImage(t, t.TempDir())

	_, err := client.Recognize(context.Background(), input, outputDir)
	if err == nil {
		t.Fatal("expected failure")
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if engineErr.Detail != "Exception: model weights missing" {
		t.Errorf("detail = %q", engineErr.Detail)
	}
	if engineErr.RetryDetail != "" {
		t.Errorf("unexpected retry detail %q", engineErr.RetryDetail)
	}
	if len(calls) != 1 {
		t.Errorf("engine invoked %d times, want 1 (no retry)", len(calls))
	}
}

func TestRecognizeRetriesStaffDetectionFailure(t *testing.T) {
	var calls []string
	client, _, outputDir := newTestClient(t, []fakeRun{
		{result: CommandResult{ExitCode: 1, Output: "Exception: No staffs found in image"}},
		{result: CommandResult{ExitCode: 0}, sibling: "<score-partwise/>"},
	}, &calls)
	input := writeInputImage(t, t.TempDir())

	path, err := client.Recognize(context.Background(), input, outputDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("engine invoked %d times, want 2", len(calls))
	}
	if !strings.HasSuffix(calls[1], "_staff_retry.png") {
		t.Errorf("retry ran against %q, want enhanced render", calls[1])
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestRecognizeExhaustedRetryCombinesDiagnostics(t *testing.T) {
	var calls []string
	client, _, outputDir := newTestClient(t, []fakeRun{
		{result: CommandResult{ExitCode: 1, Output: "found 0 staff anchors"}},
		{result: CommandResult{ExitCode: 1, Output: "Exception: no noteheads found"}},
	}, &calls)
	input := writeInputImage(t, t.TempDir())

	_, err := client.Recognize(context.Background(), input, outputDir)
	if err == nil {
		t.Fatal("expected failure")
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if engineErr.Detail != "found 0 staff anchors" {
		t.Errorf("first detail = %q", engineErr.Detail)
	}
	if engineErr.RetryDetail != "Exception: no noteheads found" {
		t.Errorf("retry detail = %q", engineErr.RetryDetail)
	}
	if !strings.Contains(err.Error(), "enhancement retry") {
		t.Errorf("message lacks crop advice: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("engine invoked %d times, want exactly 2", len(calls))
	}
}

func TestRecognizeTimeout(t *testing.T) {
	var calls []string
	client, _, outputDir := newTestClient(t, []fakeRun{
		{err: context.DeadlineExceeded},
	}, &calls)
	input := writeInputImage(t, t.TempDir())

	_, err := client.Recognize(context.Background(), input, outputDir)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("timeout marker missing: %v", err)
	}
}

func TestRecognizeCancellationIsNotATimeout(t *testing.T) {
	var calls []string
	client, _, outputDir := newTestClient(t, []fakeRun{
		{err: context.Canceled},
	}, &calls)
	input := writeInputImage(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Recognize(ctx, input, outputDir)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, services.ErrTimeout) {
		t.Fatalf("cancellation misreported as timeout: %v", err)
	}
}

func TestRecognizeMissingEngineDir(t *testing.T) {
	client := New(Config{Dir: filepath.Join(t.TempDir(), "absent")}, nil)
	_, err := client.Recognize(context.Background(), "input.png", t.TempDir())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAvailable(t *testing.T) {
	var calls []string
	client, _, _ := newTestClient(t, []fakeRun{
		{result: CommandResult{ExitCode: 0}},
	}, &calls)
	if !client.Available(context.Background()) {
		t.Error("expected available")
	}

	missing := New(Config{Dir: filepath.Join(t.TempDir(), "absent")}, nil)
	if missing.Available(context.Background()) {
		t.Error("expected unavailable for missing directory")
	}
}

func TestSummarizeError(t *testing.T) {
	cases := []struct {
		name    string
		details string
		want    string
	}{
		{"exception line wins", "line one\nException: staffs gone\ntrailing", "Exception: staffs gone"},
		{"case insensitive prefix", "EXCEPTION: loud failure", "EXCEPTION: loud failure"},
		{"last non-blank fallback", "first\nsecond\n\n", "second"},
		{"empty input", "", unknownErrorText},
	}
	for _, tc := range cases {
		if got := summarizeError(tc.details); got != tc.want {
			t.Errorf("%s: summarizeError = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsStaffDetectionFailure(t *testing.T) {
	cases := []struct {
		details string
		want    bool
	}{
		{"Exception: No Staffs Found", true},
		{"found 0 staffs in segmentation", true},
		{"found 0 staff anchors", true},
		{"no noteheads found on page", true},
		{"Exception: CUDA out of memory", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isStaffDetectionFailure(tc.details); got != tc.want {
			t.Errorf("isStaffDetectionFailure(%q) = %v, want %v", tc.details, got, tc.want)
		}
	}
}
