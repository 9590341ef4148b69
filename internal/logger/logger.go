package logger

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LoggerService sends the standard logger and the structured slog logger to
// a size-rotated file in folderPath. Files older than retentionDays are
// zipped daily.
type LoggerService struct {
	Config        map[string]interface{}
	file          *os.File
	mu            sync.Mutex
	stopCh        chan struct{}
	wg            sync.WaitGroup
	currentLog    string
	maxFileBytes  int64
	retentionDays int
	folderPath    string
	level         slog.Level
}

func NewLoggerService(config map[string]interface{}) *LoggerService {
	folder, _ := config["folder_path"].(string)
	if folder == "" {
		folder = "./logs"
	}
	return &LoggerService{
		Config:        config,
		stopCh:        make(chan struct{}),
		maxFileBytes:  int64(intValue(config["max_file_mb"])) * 1024 * 1024,
		retentionDays: intValue(config["retention_days"]),
		folderPath:    folder,
		level:         ParseLevel(stringValue(config["level"])),
	}
}

func (l *LoggerService) Name() string {
	return "logger"
}

func (l *LoggerService) Start() error {
	logFile, err := l.open()
	if err != nil {
		return err
	}
	// slog.SetDefault reroutes the log package through the JSON handler;
	// point it back at the file so plain and audit lines keep their format
	// and are not filtered by the slog level.
	slog.SetDefault(slog.New(slog.NewJSONHandler(fileWriter{l}, &slog.HandlerOptions{Level: l.level})))
	log.SetOutput(fileWriter{l})
	log.SetFlags(log.LstdFlags)
	log.Println("[LoggerService] Started, writing to", logFile)

	l.wg.Add(1)
	go l.backgroundWorker()
	return nil
}

func (l *LoggerService) open() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.folderPath, 0755); err != nil {
		return "", err
	}
	logFile := l.nextLogFileName()
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}
	l.file = file
	l.currentLog = logFile
	return logFile, nil
}

// Stop closes the log file; later writes fall through to stderr.
func (l *LoggerService) Stop() error {
	close(l.stopCh)
	l.wg.Wait()
	log.Println("[LoggerService] Stopping")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// fileWriter follows the current log file across rotations.
type fileWriter struct{ l *LoggerService }

func (w fileWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	if w.l.file == nil {
		return os.Stderr.Write(p)
	}
	return w.l.file.Write(p)
}

func (l *LoggerService) nextLogFileName() string {
	timestamp := time.Now().Format("20060102_150405.000")
	return filepath.Join(l.folderPath, fmt.Sprintf("loanbook_%s.log", timestamp))
}

func (l *LoggerService) rotateIfNeeded() error {
	newLog, err := l.rotate()
	if err != nil || newLog == "" {
		return err
	}
	log.Println("[LoggerService] Rotated log file to", newLog)
	return nil
}

// rotate swaps in a new file once the current one is too large and returns
// its name, or "" when no rotation was needed.
func (l *LoggerService) rotate() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.maxFileBytes <= 0 {
		return "", nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() < l.maxFileBytes {
		return "", nil
	}
	l.file.Close()
	newLog := l.nextLogFileName()
	file, err := os.OpenFile(newLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.file = nil
		return "", err
	}
	l.file = file
	l.currentLog = newLog
	return newLog, nil
}

func (l *LoggerService) backgroundWorker() {
	defer l.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	retentionTicker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.rotateIfNeeded(); err != nil {
				fmt.Fprintln(os.Stderr, "[LoggerService] rotate:", err)
			}
		case <-retentionTicker.C:
			l.zipAndCleanOldLogs()
		}
	}
}

func (l *LoggerService) zipAndCleanOldLogs() {
	if l.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	files, err := os.ReadDir(l.folderPath)
	if err != nil {
		return
	}

	var old []string
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".log" {
			continue
		}
		fullPath := filepath.Join(l.folderPath, f.Name())
		info, err := os.Stat(fullPath)
		if err != nil || info.ModTime().After(cutoff) || fullPath == l.currentLogName() {
			continue
		}
		old = append(old, fullPath)
	}
	if len(old) == 0 {
		return
	}

	zipName := filepath.Join(l.folderPath, fmt.Sprintf("logs_%s.zip", time.Now().Format("20060102")))
	zipFile, err := os.Create(zipName)
	if err != nil {
		return
	}
	defer zipFile.Close()
	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, path := range old {
		w, err := zipWriter.Create(filepath.Base(path))
		if err != nil {
			continue
		}
		src, err := os.Open(path)
		if err != nil {
			continue
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err == nil {
			os.Remove(path)
		}
	}
}

func (l *LoggerService) currentLogName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLog
}

func (l *LoggerService) LogAudit(msg string) {
	log.Printf("[AUDIT] %s", msg)
}

var GlobalLogger *LoggerService

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}

// Audit writes an audit line through the global logger when one is set.
func Audit(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if GlobalLogger != nil {
		GlobalLogger.LogAudit(msg)
		return
	}
	log.Printf("[AUDIT] %s", msg)
}

// ParseLevel maps LOG_LEVEL values onto slog levels; unknown values mean
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func intValue(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		var n int
		if _, err := fmt.Sscanf(t, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
