package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StringListReport collects a titled list of items accumulated over a build,
// flushed to a text file under ReportPath. Record and Drain are safe for
// concurrent use; download workers append from multiple goroutines.
type StringListReport struct {
	Title string

	mu    sync.Mutex
	items []string
}

var GlobalFetchReport = &StringListReport{Title: "FetchedArtifacts"}
var ReportPath = "builds"

// Record appends one item to the report.
func (r *StringListReport) Record(item string) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
}

// Drain returns the accumulated items and resets the report.
func (r *StringListReport) Drain() []string {
	r.mu.Lock()
	items := r.items
	r.items = nil
	r.mu.Unlock()
	return items
}

// WriteFetchReport writes GlobalFetchReport to a text file, one item per
// line. The title is sanitized and appended to the filename, e.g.
// fetch-FetchedArtifacts.txt. The in-memory list is reset after writing.
func WriteFetchReport() error {
	if err := os.MkdirAll(ReportPath, 0755); err != nil {
		return fmt.Errorf("creating report path: %w", err)
	}

	title := GlobalFetchReport.Title
	if title == "" {
		title = "untitled"
	}
	safeTitle := ""
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			safeTitle += string(r)
		} else {
			safeTitle += "_"
		}
	}

	reportFullPath := filepath.Join(ReportPath, fmt.Sprintf("fetch-%s.txt", safeTitle))

	f, err := os.OpenFile(reportFullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	for _, item := range GlobalFetchReport.Drain() {
		if _, err := fmt.Fprintln(f, item); err != nil {
			return fmt.Errorf("writing to file: %w", err)
		}
	}

	if _, err := fmt.Fprintln(f); err != nil {
		return fmt.Errorf("writing new line to file: %w", err)
	}

	return nil
}
