package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic. It never includes key history.
type CrashReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumGoroutine int               `json:"num_goroutine"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Component    string            `json:"component,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// CrashHandler writes crash reports for recovered panics.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	stderr    io.Writer
}

// DefaultCrashDir returns the platform-specific default crash directory.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// NewCrashHandler creates a handler writing to dir, or DefaultCrashDir.
func NewCrashHandler(dir, version, component string) *CrashHandler {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	return &CrashHandler{crashDir: dir, version: version, component: component, stderr: os.Stderr}
}

// Dir returns the directory reports are written to.
func (h *CrashHandler) Dir() string {
	return h.crashDir
}

// HandlePanic records a panic value with the current stack.
func (h *CrashHandler) HandlePanic(value any, context map[string]string) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprintf("%v", value),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Context:      context,
	}

	path, err := h.write(report)
	fmt.Fprintf(h.stderr, "\n=== CRASH REPORT ===\nTime: %s\nPanic: %s\n",
		report.Timestamp.Format(time.RFC3339), report.PanicValue)
	if err != nil {
		fmt.Fprintf(h.stderr, "Crash dump not written: %v\n", err)
	} else {
		fmt.Fprintf(h.stderr, "Crash dump written to: %s\n", path)
	}
	return report
}

// Recover is deferred at the top of a goroutine. It records the panic and
// re-panics so the process still dies.
func (h *CrashHandler) Recover() {
	if r := recover(); r != nil {
		h.HandlePanic(r, nil)
		panic(r)
	}
}

func (h *CrashHandler) write(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports reads every crash report in the directory.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Cleanup removes reports older than maxAge.
func (h *CrashHandler) Cleanup(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
