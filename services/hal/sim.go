package hal

import (
	"sync"
	"time"

	"smokenode/types"
)

// ----------------------------- GPIO (sim) ------------------------------------

// SimPin implements IRQPin for the simulator and tests.
type SimPin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	irqEdge Edge
	irqFunc func()
	reads   int
	script  []bool // levels returned by successive Get calls before falling back to level
}

func NewSimPin(n int) *SimPin { return &SimPin{number: n} }

func (p *SimPin) ConfigureInput(_ Pull) error { return nil }

// Set drives the line and fires the IRQ handler when the edge matches.
func (p *SimPin) Set(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	want := irqWanted(p.irqEdge, edgeFrom(old, level))
	irq := p.irqFunc
	p.mu.Unlock()
	if want && irq != nil {
		irq()
	}
}

// Script queues levels for the next Get calls (debounce poll tests).
func (p *SimPin) Script(levels ...bool) {
	p.mu.Lock()
	p.script = append(p.script[:0], levels...)
	p.mu.Unlock()
}

func (p *SimPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if len(p.script) > 0 {
		v := p.script[0]
		p.script = p.script[1:]
		return v
	}
	return p.level
}

// Reads returns how many times the line was sampled.
func (p *SimPin) Reads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reads
}

func (p *SimPin) Number() int { return p.number }

func (p *SimPin) SetIRQ(edge Edge, handler func()) error {
	p.mu.Lock()
	p.irqEdge = edge
	p.irqFunc = handler
	p.mu.Unlock()
	return nil
}

func (p *SimPin) ClearIRQ() error {
	p.mu.Lock()
	p.irqEdge = EdgeNone
	p.irqFunc = nil
	p.mu.Unlock()
	return nil
}

func edgeFrom(old, cur bool) Edge {
	switch {
	case !old && cur:
		return EdgeRising
	case old && !cur:
		return EdgeFalling
	default:
		return EdgeNone
	}
}

func irqWanted(cfg, seen Edge) bool {
	switch cfg {
	case EdgeBoth:
		return seen == EdgeRising || seen == EdgeFalling
	default:
		return cfg != EdgeNone && cfg == seen
	}
}

// ----------------------------- ADC (sim) -------------------------------------

// SimADC returns scripted raw samples, then Default. Each read takes Delay.
type SimADC struct {
	mu       sync.Mutex
	Samples  []int
	Default  int
	Fail     error
	Delay    time.Duration
	acquired int
	released int
	reads    int
}

type simADCHandle struct {
	a    *SimADC
	done bool
}

func (a *SimADC) Acquire(channel int) (ADCHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Fail != nil {
		return nil, a.Fail
	}
	a.acquired++
	return &simADCHandle{a: a}, nil
}

func (h *simADCHandle) Read() int {
	if h.a.Delay > 0 {
		time.Sleep(h.a.Delay)
	}
	h.a.mu.Lock()
	defer h.a.mu.Unlock()
	h.a.reads++
	if len(h.a.Samples) > 0 {
		v := h.a.Samples[0]
		h.a.Samples = h.a.Samples[1:]
		return v
	}
	return h.a.Default
}

func (h *simADCHandle) Release() {
	if h.done {
		return
	}
	h.done = true
	h.a.mu.Lock()
	h.a.released++
	h.a.mu.Unlock()
}

// Counters returns acquire, release and read counts.
func (a *SimADC) Counters() (acquired, released, reads int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acquired, a.released, a.reads
}

// ----------------------------- Sleep (sim) -----------------------------------

// SleepRecord is what one simulated deep-sleep entry armed.
type SleepRecord struct {
	Seconds  uint32
	PinArmed bool
	PinMask  uint64
	At       time.Time
}

// SimSleep records armed wake sources and deep-sleep entries. DeepSleep
// returns so the caller can observe it; real boards never return.
type SimSleep struct {
	mu      sync.Mutex
	Cause   types.WakeCause
	timer   uint32
	pinMask uint64
	pinOn   bool
	entries []SleepRecord
	entered chan SleepRecord
}

func NewSimSleep(cause types.WakeCause) *SimSleep {
	return &SimSleep{Cause: cause, entered: make(chan SleepRecord, 4)}
}

func (s *SimSleep) WakeCause() types.WakeCause {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Cause
}

func (s *SimSleep) ArmTimer(seconds uint32) {
	s.mu.Lock()
	s.timer = seconds
	s.mu.Unlock()
}

func (s *SimSleep) ArmPin(_ int, levelMask uint64) {
	s.mu.Lock()
	s.pinOn = true
	s.pinMask = levelMask
	s.mu.Unlock()
}

func (s *SimSleep) DeepSleep() {
	s.mu.Lock()
	rec := SleepRecord{Seconds: s.timer, PinArmed: s.pinOn, PinMask: s.pinMask, At: time.Now()}
	s.entries = append(s.entries, rec)
	s.timer, s.pinOn, s.pinMask = 0, false, 0
	s.mu.Unlock()
	select {
	case s.entered <- rec:
	default:
	}
}

// Entered delivers each deep-sleep entry.
func (s *SimSleep) Entered() <-chan SleepRecord { return s.entered }

// Entries returns every deep-sleep entry so far.
func (s *SimSleep) Entries() []SleepRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SleepRecord(nil), s.entries...)
}

// ----------------------------- Board (sim) -----------------------------------

// SimName is the Name of every simulated board.
const SimName = "sim"

// SimBoard is a whole simulated node.
type SimBoard struct {
	*Board
	Pin   *SimPin
	Conv  *SimADC
	Sleep *SimSleep
	Mem   *MemStore
	boot  time.Time
}

// NewSimBoard builds a simulated board with the smoke line on pin.
func NewSimBoard(pin int, cause types.WakeCause) *SimBoard {
	sb := &SimBoard{
		Pin:   NewSimPin(pin),
		Conv:  &SimADC{Default: 2406}, // about 2.8 V
		Sleep: NewSimSleep(cause),
		Mem:   &MemStore{},
		boot:  time.Now(),
	}
	sb.Board = &Board{
		Name:   SimName,
		Smoke:  sb.Pin,
		ADC:    sb.Conv,
		Sleep:  sb.Sleep,
		Store:  sb.Mem,
		Uptime: func() time.Duration { return time.Since(sb.boot) },
	}
	return sb
}

// Reboot starts a new simulated boot with the given cause; retained memory
// survives unless cause is a cold boot with powerLoss set.
func (sb *SimBoard) Reboot(cause types.WakeCause, powerLoss bool) {
	if powerLoss {
		sb.Mem.PowerLoss()
	}
	sb.Sleep.mu.Lock()
	sb.Sleep.Cause = cause
	sb.Sleep.mu.Unlock()
	sb.boot = time.Now()
}

// NextCause derives the cause of the wake following rec: a pin wake if the
// pin was armed and the line is high, otherwise the timer.
func (sb *SimBoard) NextCause(rec SleepRecord) types.WakeCause {
	sb.Pin.mu.RLock()
	high := sb.Pin.level
	sb.Pin.mu.RUnlock()
	if rec.PinArmed && high {
		return types.WakeExternalPin
	}
	return types.WakeTimer
}
