package etl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	apperrors "github.com/BartekS5/taprun/pkg/errors"
	"github.com/BartekS5/taprun/pkg/logger"
	"github.com/BartekS5/taprun/pkg/models"
)

const readBufferSize = 64 * 1024

type flusher interface {
	Flush() error
}

// DemuxStats summarises one stdout stream.
type DemuxStats struct {
	LinesForwarded int
	DecodeWarnings int
	Messages       map[models.MessageType]int
}

// Demultiplexer forwards every tap stdout line to Sink, in order and
// unmodified, and remembers the value of the latest STATE message.
type Demultiplexer struct {
	Sink    io.Writer
	Metrics *Metrics
	Logger  *slog.Logger

	mu        sync.Mutex
	last      json.RawMessage
	seenState bool
	stats     DemuxStats
}

func NewDemultiplexer(sink io.Writer, metrics *Metrics, log *slog.Logger) *Demultiplexer {
	if log == nil {
		log = logger.L()
	}
	return &Demultiplexer{
		Sink:    sink,
		Metrics: metrics,
		Logger:  log,
		stats:   DemuxStats{Messages: map[models.MessageType]int{}},
	}
}

// Consume reads r line by line until EOF. It only returns an error when
// the sink fails or r does; bad JSON is counted and skipped.
func (d *Demultiplexer) Consume(r io.Reader) error {
	br := bufio.NewReaderSize(r, readBufferSize)
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			if err := d.handleLine(line); err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// handleLine forwards line as read, adding a newline only when the stream
// ended without one. The carriage return of a CRLF line is kept on the
// sink but ignored for decoding.
func (d *Demultiplexer) handleLine(line []byte) error {
	line = bytes.TrimSuffix(line, []byte("\n"))
	content := bytes.TrimSuffix(line, []byte("\r"))
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}

	if err := d.forward(line); err != nil {
		return err
	}

	msg, err := models.DecodeMessage(content)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.LinesForwarded++
	d.Metrics.lineForwarded()
	if err != nil {
		d.stats.DecodeWarnings++
		d.Metrics.decodeWarning()
		d.Logger.Warn("ignoring undecodable tap output",
			"kind", apperrors.KindProtocolDecode.String(),
			"line", preview(content, 120))
		return nil
	}

	d.stats.Messages[msg.Type]++
	d.Metrics.message(msg.Type)
	if msg.Type == models.MessageState {
		d.last = append(json.RawMessage(nil), msg.Value...)
		d.seenState = true
	}
	return nil
}

func (d *Demultiplexer) forward(line []byte) error {
	out := make([]byte, 0, len(line)+1)
	out = append(out, line...)
	out = append(out, '\n')
	if _, err := d.Sink.Write(out); err != nil {
		return err
	}
	if f, ok := d.Sink.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// LastCheckpoint returns the value of the most recent STATE message.
func (d *Demultiplexer) LastCheckpoint() (json.RawMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seenState {
		return nil, false
	}
	return append(json.RawMessage(nil), d.last...), true
}

func (d *Demultiplexer) Stats() DemuxStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := DemuxStats{
		LinesForwarded: d.stats.LinesForwarded,
		DecodeWarnings: d.stats.DecodeWarnings,
		Messages:       make(map[models.MessageType]int, len(d.stats.Messages)),
	}
	for k, v := range d.stats.Messages {
		s.Messages[k] = v
	}
	return s
}

// preview cuts b to at most max bytes without splitting a UTF-8 sequence.
func preview(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}

// StderrLogger logs every tap stderr line and keeps the last bytes for the
// terminal diagnostic.
type StderrLogger struct {
	Logger  *slog.Logger
	Metrics *Metrics
	tail    *tailBuffer
}

func NewStderrLogger(log *slog.Logger, metrics *Metrics, tailBytes int) *StderrLogger {
	if log == nil {
		log = logger.L()
	}
	return &StderrLogger{Logger: log, Metrics: metrics, tail: newTailBuffer(tailBytes)}
}

func (s *StderrLogger) Consume(r io.Reader) error {
	br := bufio.NewReaderSize(r, readBufferSize)
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			_, _ = s.tail.Write(line)
			text := string(bytes.TrimRight(line, "\r\n"))
			if text != "" {
				s.Logger.Info(text, "stream", "stderr")
				s.Metrics.stderrLine()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// Tail returns the captured end of the stream.
func (s *StderrLogger) Tail() string {
	return s.tail.String()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	mu  sync.Mutex
	buf []byte

	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 8 * 1024
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.truncated {
		return "..." + string(t.buf)
	}
	return string(t.buf)
}
