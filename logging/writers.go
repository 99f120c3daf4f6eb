package logging

import (
	"context"
	"io"
	"os"
	"sync"
)

// globalWriter is an io.Writer whose destination can be swapped at runtime.
type globalWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (gw *globalWriter) Write(p []byte) (n int, err error) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.w.Write(p)
}

func (gw *globalWriter) Set(w io.Writer) io.Writer {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	prev := gw.w
	gw.w = w
	return prev
}

var defaultGlobalWriter = &globalWriter{w: os.Stderr}

// SetGlobalOutput redirects the console output of every logger and returns
// the previous destination. The interactive view uses it to keep log lines
// from tearing the screen.
func SetGlobalOutput(w io.Writer) io.Writer {
	return defaultGlobalWriter.Set(w)
}

// GetGlobalOutput returns the shared console writer.
func GetGlobalOutput() io.Writer {
	return defaultGlobalWriter
}

type contextKey string

const outputWriterKey contextKey = "child_output_writer"

// GetWriter returns the writer attached to ctx for child process output,
// falling back to the global console writer.
func GetWriter(ctx context.Context) io.Writer {
	if writer, ok := ctx.Value(outputWriterKey).(io.Writer); ok && writer != nil {
		return writer
	}
	return GetGlobalOutput()
}

// WithWriter attaches a child process output writer to ctx.
func WithWriter(ctx context.Context, writer io.Writer) context.Context {
	return context.WithValue(ctx, outputWriterKey, writer)
}
