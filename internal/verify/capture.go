package verify

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Capture records every line an intercepting logger formats.
type Capture struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the captured lines in order.
func (c *Capture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Len returns the number of captured lines.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Contains reports whether any captured line contains s.
func (c *Capture) Contains(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

func (c *Capture) record(ent zapcore.Entry) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := fmt.Sprintf("%d %s %s", len(c.lines)+1, ent.Level, ent.Message)
	c.lines = append(c.lines, line)
	return line
}

var pool = buffer.NewPool()

// interceptEncoder replaces zap's formatting step with "<n> <level> <message>"
// and records each line on the shared Capture.
type interceptEncoder struct {
	zapcore.Encoder
	capture *Capture
}

func (e *interceptEncoder) Clone() zapcore.Encoder {
	return &interceptEncoder{Encoder: e.Encoder.Clone(), capture: e.capture}
}

func (e *interceptEncoder) EncodeEntry(ent zapcore.Entry, _ []zapcore.Field) (*buffer.Buffer, error) {
	buf := pool.Get()
	buf.AppendString(e.capture.record(ent))
	buf.AppendByte('\n')
	return buf, nil
}

// NewCaptureLogger returns a debug-level logger whose formatting step is
// intercepted, and the Capture it records into. Formatted lines are also
// written to w; nil discards them.
func NewCaptureLogger(w io.Writer) (*zap.SugaredLogger, *Capture) {
	if w == nil {
		w = io.Discard
	}
	capture := &Capture{}
	enc := &interceptEncoder{
		Encoder: zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		capture: capture,
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel)
	return zap.New(core).Sugar(), capture
}
