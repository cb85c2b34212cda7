package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// LoadState is the lifecycle of one window's load.
type LoadState int

const (
	LoadPending LoadState = iota
	LoadInFlight
	LoadDone
	LoadPartial
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadInFlight:
		return "LOADING"
	case LoadDone:
		return "READY"
	case LoadPartial:
		return "PARTIAL"
	case LoadFailed:
		return "UNAVAILABLE"
	default:
		return "PENDING"
	}
}

// Settled reports whether the load has finished, successfully or not.
func (s LoadState) Settled() bool {
	return s == LoadDone || s == LoadPartial || s == LoadFailed
}

// WindowLoader requests windows from a QuestionSource and places arriving
// questions into the slot arena. It is safe for concurrent use.
type WindowLoader struct {
	mu        sync.Mutex
	slots     *slotArray
	bp        Blueprint
	size      int
	source    *QuestionSource
	states    []LoadState
	requested int
	sealed    bool

	// onBatch is called without the loader lock after questions were written.
	onBatch func(window, written int)
	log     zerolog.Logger
}

// NewWindowLoader creates a loader with every slot Locked.
func NewWindowLoader(bp Blueprint, source *QuestionSource, log zerolog.Logger) *WindowLoader {
	return &WindowLoader{
		slots:     newSlotArray(bp.TotalQuestions()),
		bp:        bp,
		size:      bp.WindowSize(),
		source:    source,
		states:    make([]LoadState, bp.WindowCount()),
		requested: -1,
		log:       log,
	}
}

// Begin marks window index as in flight. It returns false when the window was
// already requested, which makes repeated loads a no-op. Windows must be
// requested in index order.
func (l *WindowLoader) Begin(index int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index < 0 || index >= len(l.states) {
		return false, fmt.Errorf("window %d out of range", index)
	}
	if l.sealed {
		return false, ErrSessionClosed
	}
	if l.states[index] != LoadPending {
		return false, nil
	}
	if index > l.requested+1 {
		return false, fmt.Errorf("%w: window %d, last requested %d", ErrWindowOutOfOrder, index, l.requested)
	}

	l.states[index] = LoadInFlight
	l.requested = index
	return true, nil
}

// Run fetches window index and fills its slots as batches arrive. Begin must
// have returned true for index. It returns the number of slots loaded.
func (l *WindowLoader) Run(ctx context.Context, index int) (int, error) {
	n, err := l.source.FetchWindow(ctx, l.bp, index, func(b Batch) int {
		return l.place(b)
	})

	l.mu.Lock()
	loaded := l.slots.loadedIn(l.windowRange(index))
	switch {
	case loaded == l.size:
		l.states[index] = LoadDone
	case loaded > 0:
		l.states[index] = LoadPartial
	default:
		l.states[index] = LoadFailed
	}
	state := l.states[index]
	l.mu.Unlock()

	l.log.Debug().
		Int("window", index).
		Int("delivered", n).
		Int("loaded", loaded).
		Str("state", state.String()).
		Msg("Window load settled")

	if loaded == 0 {
		if err == nil {
			err = ErrNoQuestions
		}
		return 0, err
	}
	return loaded, err
}

// LoadWindow is Begin followed by Run. Loading an already requested window is a no-op.
func (l *WindowLoader) LoadWindow(ctx context.Context, index int) (int, error) {
	ok, err := l.Begin(index)
	if err != nil || !ok {
		return 0, err
	}
	return l.Run(ctx, index)
}

// place writes a batch into the first Locked slots of its sub-range.
func (l *WindowLoader) place(b Batch) int {
	l.mu.Lock()
	if l.sealed {
		l.mu.Unlock()
		return 0
	}
	start, _ := l.windowRange(b.Window)
	from := start + b.Offset
	written := l.slots.fill(from, from+b.Span, b.Questions)
	l.mu.Unlock()

	if written > 0 && l.onBatch != nil {
		l.onBatch(b.Window, written)
	}
	return written
}

// Seal discards all future writes.
func (l *WindowLoader) Seal() {
	l.mu.Lock()
	l.sealed = true
	l.mu.Unlock()
}

func (l *WindowLoader) windowRange(w int) (int, int) {
	return w * l.size, (w + 1) * l.size
}

// IsLoaded reports whether slot i holds a question.
func (l *WindowLoader) IsLoaded(i int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slots.isLoaded(i)
}

// Len is the total number of slots.
func (l *WindowLoader) Len() int { return l.slots.Len() }

// Question returns the question in slot i if it is loaded.
func (l *WindowLoader) Question(i int) (Slot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.slots.isLoaded(i) {
		return Slot{}, false
	}
	return l.slots.slots[i], true
}

// State returns the load state of window w.
func (l *WindowLoader) State(w int) LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[w]
}

// Loading reports whether window w has a load in flight.
func (l *WindowLoader) Loading(w int) bool {
	return l.State(w) == LoadInFlight
}

// LoadedIn counts loaded slots in window w.
func (l *WindowLoader) LoadedIn(w int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slots.loadedIn(l.windowRange(w))
}

// Slots returns a copy of the slot arena.
func (l *WindowLoader) Slots() []Slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slots.snapshot()
}

// States returns a copy of every window's load state.
func (l *WindowLoader) States() []LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LoadState, len(l.states))
	copy(out, l.states)
	return out
}
