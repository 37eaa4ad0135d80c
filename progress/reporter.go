// Package progress reports transfer progress as throttled log events and,
// optionally, terminal progress bars.
package progress

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultInterval is the minimum gap between two progress events of one
// transfer.
const DefaultInterval = 2 * time.Second

// Clock supplies the current time. The real clock carries a monotonic
// reading, so elapsed times survive wall clock jumps.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Reporter creates Trackers that share one logger, interval and clock.
type Reporter struct {
	logger   *slog.Logger
	interval time.Duration
	clock    Clock
	bars     bool
	barOut   io.Writer
}

type Option func(*Reporter)

// WithClock replaces the time source.
func WithClock(c Clock) Option {
	return func(r *Reporter) { r.clock = c }
}

// WithBars draws a terminal progress bar for every transfer of known size.
func WithBars(enabled bool) Option {
	return func(r *Reporter) { r.bars = enabled }
}

// WithBarOutput sets where bars are drawn (stderr by default).
func WithBarOutput(w io.Writer) Option {
	return func(r *Reporter) { r.barOut = w }
}

func NewReporter(logger *slog.Logger, interval time.Duration, opts ...Option) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reporter{
		logger:   logger,
		interval: interval,
		clock:    realClock{},
		barOut:   os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track starts tracking one transfer. A negative total means the size is
// unknown and progress is reported in absolute bytes only.
func (r *Reporter) Track(phase, key string, total int64) *Tracker {
	t := &Tracker{
		r:     r,
		phase: phase,
		key:   key,
		total: total,
		start: r.clock.Now(),
	}
	if r.bars && total >= 0 {
		t.bar = NewBytesBar(total, r.barOut).SetCaption(phase + " " + key)
	}
	return t
}

// Tracker accumulates the bytes of one transfer. Add is safe for concurrent
// use and never blocks on logging: when an event is due, exactly one caller
// emits it and the others skip.
type Tracker struct {
	r     *Reporter
	phase string
	key   string
	total int64
	start time.Time

	bytes    atomic.Int64
	lastEmit atomic.Int64 // elapsed nanoseconds at the last event
	done     atomic.Bool
	bar      *ProgressBar
}

// Add records n more bytes and emits a progress event if the interval has
// passed since the previous one.
func (t *Tracker) Add(n int64) {
	if n <= 0 {
		return
	}
	t.bytes.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}

	elapsed := int64(t.r.clock.Now().Sub(t.start))
	last := t.lastEmit.Load()
	if elapsed-last < int64(t.r.interval) {
		return
	}
	if !t.lastEmit.CompareAndSwap(last, elapsed) {
		return
	}
	snap := t.Snapshot()
	t.r.logger.LogAttrs(context.Background(), slog.LevelInfo, t.phase+" progress", snap.attrs()...)
}

// Snapshot returns the current state without emitting anything.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Phase:   t.phase,
		Key:     t.key,
		Bytes:   t.bytes.Load(),
		Total:   t.total,
		Elapsed: t.r.clock.Now().Sub(t.start),
	}
}

// Finish stops the bar, if any, and returns the final snapshot. Calling it
// more than once is harmless.
func (t *Tracker) Finish() Snapshot {
	if t.done.CompareAndSwap(false, true) && t.bar != nil {
		t.bar.Finish()
	}
	return t.Snapshot()
}

// Snapshot is a point-in-time view of one transfer.
type Snapshot struct {
	Phase   string
	Key     string
	Bytes   int64
	Total   int64 // negative when unknown
	Elapsed time.Duration
}

// Rate is the average throughput in bytes per second.
func (s Snapshot) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Elapsed.Seconds()
}

// Percent reports completion, or false when the total is unknown.
func (s Snapshot) Percent() (float64, bool) {
	switch {
	case s.Total < 0:
		return 0, false
	case s.Total == 0:
		return 100, true
	default:
		return float64(s.Bytes) * 100 / float64(s.Total), true
	}
}

func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(s.attrs()...)
}

func (s Snapshot) attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("key", s.Key),
		slog.String("bytes", humanize.IBytes(uint64(s.Bytes))),
	}
	if pct, ok := s.Percent(); ok {
		attrs = append(attrs,
			slog.String("total", humanize.IBytes(uint64(s.Total))),
			slog.String("pct", humanize.FormatFloat("#.#", pct)),
		)
	}
	return append(attrs,
		slog.String("rate", humanize.IBytes(uint64(s.Rate()))+"/s"),
		slog.Duration("elapsed", s.Elapsed.Round(time.Millisecond)),
	)
}
