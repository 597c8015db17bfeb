// services/hal/internal/gpioirq/irq_worker.go
package gpioirq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"smokenode/services/hal/internal/halcore"
	"smokenode/services/hal/internal/util"
)

// Event is delivered from the worker to the consumer (the light sleeper).
type Event struct {
	Name  string
	Level int // 0/1 after inversion applied
	Edge  halcore.Edge
	TS    time.Time
}

type Worker struct {
	// Written by ISR; MUST NOT block the ISR:
	isrQ chan isrEvent
	// Consumed by the sleeper:
	outQ    chan Event
	stopped chan struct{}

	mu     sync.RWMutex
	inputs map[string]*watch // name -> watch

	drops uint32 // ISR drop counter
}

type isrEvent struct {
	name  string
	level bool // captured in ISR
}

type watch struct {
	name      string
	pin       halcore.IRQPin
	edge      halcore.Edge
	debounce  time.Duration
	invert    bool
	lastLevel bool
	lastEvent time.Time
}

func New(isrBuf, outBuf int) *Worker {
	if isrBuf <= 0 {
		isrBuf = 16
	}
	if outBuf <= 0 {
		outBuf = 8
	}
	return &Worker{
		isrQ:    make(chan isrEvent, isrBuf),
		outQ:    make(chan Event, outBuf),
		stopped: make(chan struct{}),
		inputs:  map[string]*watch{},
	}
}

func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.isrQ:
				w.handleISR(ev)
			}
		}
	}()
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.stopped }

func (w *Worker) Events() <-chan Event { return w.outQ }

// Watch arms an interrupt on pin and returns a cancel func that disarms it.
func (w *Worker) Watch(name string, pin halcore.IRQPin, edge halcore.Edge, debounce time.Duration, invert bool) (func(), error) {
	if edge == halcore.EdgeNone {
		return func() {}, nil
	}

	// Initial *logical* level snapshot so later edges compare like-for-like.
	init := pin.Get()
	if invert {
		init = !init
	}
	wh := &watch{
		name:      name,
		pin:       pin,
		edge:      edge,
		debounce:  debounce,
		invert:    invert,
		lastLevel: init,
	}

	// ISR handler: fast register read + non-blocking channel send.
	handler := func() {
		l := pin.Get()
		select {
		case w.isrQ <- isrEvent{name: name, level: l}:
		default:
			atomic.AddUint32(&w.drops, 1)
		}
	}
	if err := pin.SetIRQ(edge, handler); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.inputs[name] = wh
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		if cur, ok := w.inputs[name]; ok {
			_ = cur.pin.ClearIRQ()
			delete(w.inputs, name)
		}
		w.mu.Unlock()
	}, nil
}

func (w *Worker) handleISR(ev isrEvent) {
	w.mu.RLock()
	wh := w.inputs[ev.name]
	w.mu.RUnlock()
	if wh == nil {
		return
	}
	raw := ev.level
	if wh.invert {
		raw = !raw
	}
	now := time.Now()

	if !wh.lastEvent.IsZero() && now.Sub(wh.lastEvent) < wh.debounce {
		return
	}

	var e halcore.Edge
	switch {
	case wh.edge == halcore.EdgeBoth && !wh.lastLevel && raw:
		e = halcore.EdgeRising
	case wh.edge == halcore.EdgeBoth && wh.lastLevel && !raw:
		e = halcore.EdgeFalling
	case wh.edge == halcore.EdgeRising, wh.edge == halcore.EdgeFalling:
		// Only called when the configured edge fired.
		e = wh.edge
	}

	if e != halcore.EdgeNone {
		select {
		case w.outQ <- Event{Name: ev.name, Level: util.BoolToInt(raw), Edge: e, TS: now}:
		default:
			// consumer is slow; a pending edge is already queued
		}
	}

	wh.lastLevel = raw
	wh.lastEvent = now
}

func (w *Worker) ISRDrops() uint32 { return atomic.LoadUint32(&w.drops) }
