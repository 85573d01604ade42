// Package output provides consistent operator-facing CLI output for the
// searchsvc commands: status lines, success/failure markers, and plain
// indented blocks, with no color or interactivity since this tool runs
// unattended as often as it runs at a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// Writer formats status output for a CLI command.
type Writer struct {
	out io.Writer
}

// New creates a Writer that writes to out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a plain status line.
func (w *Writer) Status(msg string) {
	_, _ = fmt.Fprintln(w.out, msg)
}

// Statusf prints a formatted status line.
func (w *Writer) Statusf(format string, args ...any) {
	w.Status(fmt.Sprintf(format, args...))
}

// Success prints a line prefixed to stand out as a completed operation.
func (w *Writer) Success(msg string) {
	_, _ = fmt.Fprintf(w.out, "[ok] %s\n", msg)
}

// Successf prints a formatted success line.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a line flagging something worth the operator's attention
// that did not stop the command from completing.
func (w *Writer) Warning(msg string) {
	_, _ = fmt.Fprintf(w.out, "[warn] %s\n", msg)
}

// Error prints a line for a failure the command could not recover from.
func (w *Writer) Error(msg string) {
	_, _ = fmt.Fprintf(w.out, "[error] %s\n", msg)
}

// JSON writes v as indented JSON, for commands run with --json.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table prints rows of aligned key/value pairs, used for human-readable
// summaries of retention and baseline run results.
func (w *Writer) Table(rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w.out, "  %-*s  %s\n", width, r[0], r[1])
	}
}
