package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/hivectl/hive/internal/config"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(config.TracingConfig{Enabled: false}, t.TempDir())
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "tick")
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestUnknownExporterRejected(t *testing.T) {
	_, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "zipkin"}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipkin")
}

func TestFileExporterWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traces", "traces.jsonl")

	exp, err := newFileExporter(path)
	require.NoError(t, err)

	// Drive real spans through a syncer so lines land before we read.
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tracer := tp.Tracer("test")

	ctx, parent := tracer.Start(context.Background(), "tick")
	_, child := tracer.Start(ctx, "assign")
	child.End()
	parent.End()

	require.NoError(t, tp.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []spanLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l spanLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 2)

	// Child exported first; it links back to the parent span.
	assert.Equal(t, "assign", lines[0].Name)
	assert.Equal(t, "tick", lines[1].Name)
	assert.Equal(t, lines[1].SpanID, lines[0].Parent)
	assert.Equal(t, lines[0].TraceID, lines[1].TraceID)
}

func TestDefaultFilePathUnderHiveDir(t *testing.T) {
	dir := t.TempDir()
	p, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "file"}, dir)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	_, err = os.Stat(filepath.Join(dir, "traces", "traces.jsonl"))
	assert.NoError(t, err)
}
