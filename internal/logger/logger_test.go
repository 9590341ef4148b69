package logger

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// within fails the test when fn does not return before d.
func within(t *testing.T, d time.Duration, name string, fn func() error) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	case <-time.After(d):
		t.Fatalf("%s did not return within %v", name, d)
	}
}

func readLogs(t *testing.T, dir string) string {
	t.Helper()
	files, _ := filepath.Glob(filepath.Join(dir, "*.log"))
	var b strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		b.Write(data)
	}
	return b.String()
}

func TestLoggerWritesStructuredLines(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerService(map[string]interface{}{"folder_path": dir, "level": "debug", "retention_days": 7.0})
	within(t, 5*time.Second, "Start", l.Start)
	slog.Debug("bucket summary", "config", "cfg-1")
	l.LogAudit("dataset uploaded")
	within(t, 5*time.Second, "Stop", l.Stop)

	files, _ := filepath.Glob(filepath.Join(dir, "*.log"))
	if len(files) != 1 {
		t.Fatalf("log files = %v", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{`"msg":"bucket summary"`, `"config":"cfg-1"`, "[AUDIT] dataset uploaded"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
	if l.retentionDays != 7 {
		t.Fatalf("retention = %d", l.retentionDays)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerKeepsAuditLinesAboveSlogLevel(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerService(map[string]interface{}{"folder_path": dir, "level": "warn"})
	within(t, 5*time.Second, "Start", l.Start)
	slog.Info("ingest complete", "dataset", "d-1")
	l.LogAudit("config deleted")
	log.Printf("[INGEST] Start dataset=%s", "d-1")
	within(t, 5*time.Second, "Stop", l.Stop)

	out := readLogs(t, dir)
	for _, want := range []string{"[AUDIT] config deleted", "[INGEST] Start dataset=d-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ingest complete") {
		t.Fatalf("info event written at warn level:\n%s", out)
	}
	if strings.Contains(out, `"msg":"[AUDIT]`) {
		t.Fatalf("audit line went through the JSON handler:\n%s", out)
	}
}

func TestLoggerRotatesWithoutBlocking(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerService(map[string]interface{}{"folder_path": dir})
	within(t, 5*time.Second, "Start", l.Start)
	l.maxFileBytes = 1
	log.Println("[TEST] fill the first file")
	time.Sleep(2 * time.Millisecond)
	within(t, 5*time.Second, "rotate", l.rotateIfNeeded)
	log.Println("[TEST] after rotation")
	within(t, 5*time.Second, "Stop", l.Stop)

	files, _ := filepath.Glob(filepath.Join(dir, "*.log"))
	if len(files) != 2 {
		t.Fatalf("log files after rotation = %v", files)
	}
	if out := readLogs(t, dir); !strings.Contains(out, "[TEST] after rotation") {
		t.Fatalf("rotated file missing later lines:\n%s", out)
	}
}
