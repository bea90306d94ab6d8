package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"tradegrid.ai/internal/protocol"
)

// DefaultSegmentTicks is how many ticks share one compressed file.
const DefaultSegmentTicks = 1000

// JSONLZstdWriter appends JSON lines to zstd files, one file per segment of
// SegmentTicks ticks.
type JSONLZstdWriter struct {
	baseDir      string
	prefix       string
	segmentTicks uint64

	mu     sync.Mutex
	curSeg int64
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, segmentTicks int) *JSONLZstdWriter {
	if segmentTicks <= 0 {
		segmentTicks = DefaultSegmentTicks
	}
	return &JSONLZstdWriter{
		baseDir:      baseDir,
		prefix:       prefix,
		segmentTicks: uint64(segmentTicks),
		curSeg:       -1,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v to the segment holding tick.
func (w *JSONLZstdWriter) Write(tick uint64, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := int64(tick / w.segmentTicks)
	if seg != w.curSeg {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines into the compressor.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(seg int64) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForSegment(seg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curSeg = -1
	return err1
}

func (w *JSONLZstdWriter) pathForSegment(seg int64) string {
	first := uint64(seg) * w.segmentTicks
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%012d.jsonl.zst", w.prefix, first))
}

// TickLogger writes one JSONL entry per tick (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(runDir string, segmentTicks int) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "events"), "events", segmentTicks)}
}

func (l *TickLogger) WriteTick(m protocol.TickMsg) error { return l.w.Write(m.Tick, m) }
func (l *TickLogger) Flush() error                       { return l.w.Flush() }
func (l *TickLogger) Close() error                       { return l.w.Close() }

// TradeRecord is one line of the trade ledger.
type TradeRecord struct {
	RunID string `json:"run_id"`
	Tick  uint64 `json:"tick"`
	protocol.TradeEvent
}

// TradeLogger extracts TRADE events from each tick into a separate ledger
// (compressed).
type TradeLogger struct{ w *JSONLZstdWriter }

func NewTradeLogger(runDir string, segmentTicks int) *TradeLogger {
	return &TradeLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "trades"), "trades", segmentTicks)}
}

func (l *TradeLogger) WriteTick(m protocol.TickMsg) error {
	for _, e := range m.Events {
		if e.Type != protocol.EventTrade || e.Trade == nil {
			continue
		}
		if err := l.w.Write(m.Tick, TradeRecord{RunID: m.RunID, Tick: m.Tick, TradeEvent: *e.Trade}); err != nil {
			return err
		}
	}
	return nil
}

func (l *TradeLogger) Flush() error { return l.w.Flush() }
func (l *TradeLogger) Close() error { return l.w.Close() }
