package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// fileExporter appends spans to a JSONL file, one object per line, so a
// manager run can be inspected with jq and nothing heavier.
type fileExporter struct {
	mu   sync.Mutex
	file *os.File
}

func newFileExporter(path string) (*fileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	return &fileExporter{file: f}, nil
}

// spanLine is the on-disk shape of one span.
type spanLine struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	Parent     string         `json:"parent_span_id,omitempty"`
	Name       string         `json:"name"`
	Start      string         `json:"start_time"`
	DurationMs float64        `json:"duration_ms"`
	Status     string         `json:"status"`
	StatusMsg  string         `json:"status_message,omitempty"`
	Attrs      map[string]any `json:"attributes,omitempty"`
}

func (e *fileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	enc := json.NewEncoder(e.file)
	for _, span := range spans {
		if err := enc.Encode(toLine(span)); err != nil {
			return fmt.Errorf("encoding span: %w", err)
		}
	}
	return nil
}

func (e *fileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

func toLine(span sdktrace.ReadOnlySpan) spanLine {
	sc := span.SpanContext()

	parent := ""
	if span.Parent().IsValid() {
		parent = span.Parent().SpanID().String()
	}

	status := "UNSET"
	switch span.Status().Code {
	case codes.Ok:
		status = "OK"
	case codes.Error:
		status = "ERROR"
	}

	attrs := make(map[string]any, len(span.Attributes()))
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}

	return spanLine{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		Parent:     parent,
		Name:       span.Name(),
		Start:      span.StartTime().Format(time.RFC3339Nano),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000.0,
		Status:     status,
		StatusMsg:  span.Status().Description,
		Attrs:      attrs,
	}
}
