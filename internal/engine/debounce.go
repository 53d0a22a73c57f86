package engine

import (
	"time"

	"github.com/hazyhaar/skipper/media"
)

// debounceConfig controls how insertion events are batched into one
// recheck.
type debounceConfig struct {
	// Window is the quiet time before a recheck. Default: 1s.
	Window time.Duration
	// MaxBuffer flushes immediately when this many events accumulate. Default: 256.
	MaxBuffer int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = time.Second
	}
	if dc.MaxBuffer <= 0 {
		dc.MaxBuffer = 256
	}
}

// debouncer collects media-shaped insertions and fires once the window
// expires without new ones. It is owned by the engine loop and is not safe
// for concurrent use.
type debouncer struct {
	cfg     debounceConfig
	events  []media.Event
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func([]media.Event)
}

func newDebouncer(cfg debounceConfig, flushFn func([]media.Event)) *debouncer {
	cfg.defaults()
	return &debouncer{
		cfg:     cfg,
		events:  make([]media.Event, 0, cfg.MaxBuffer),
		flushFn: flushFn,
	}
}

// add buffers ev and restarts the window. Returns true if the buffer filled
// and was flushed immediately.
func (d *debouncer) add(ev media.Event) bool {
	d.events = append(d.events, ev)

	if len(d.events) >= d.cfg.MaxBuffer {
		d.flush()
		return true
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

// timerC fires when the window expires. Nil when nothing is pending.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) pending() int { return len(d.events) }

// flush emits the buffered events and resets.
func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if len(d.events) == 0 {
		return
	}
	batch := make([]media.Event, len(d.events))
	copy(batch, d.events)
	d.events = d.events[:0]
	d.flushFn(batch)
}

// cancel drops buffered events without firing.
func (d *debouncer) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	d.events = d.events[:0]
}
