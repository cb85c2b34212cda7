package engine

import (
	"sort"

	"github.com/stemsi/exstem-prep/internal/model"
)

// slotReader is the read side of the slot arena that answer capture depends on.
type slotReader interface {
	IsLoaded(i int) bool
	Len() int
}

// AnswerTracker records the selected option per slot. It is not safe for
// concurrent use; SessionController serializes access.
type AnswerTracker struct {
	slots   slotReader
	answers map[int]int
	closed  bool
}

// NewAnswerTracker creates an empty tracker over slots.
func NewAnswerTracker(slots slotReader) *AnswerTracker {
	return &AnswerTracker{slots: slots, answers: make(map[int]int)}
}

// SetAnswer records option for slot, replacing any earlier choice.
func (t *AnswerTracker) SetAnswer(slot, option int) error {
	if t.closed {
		return ErrSessionClosed
	}
	if slot < 0 || slot >= t.slots.Len() {
		return ErrSlotOutOfRange
	}
	if option < 0 || option >= model.OptionCount {
		return ErrInvalidOption
	}
	if !t.slots.IsLoaded(slot) {
		return ErrSlotNotReady
	}
	t.answers[slot] = option
	return nil
}

// Answer returns the selected option for slot.
func (t *AnswerTracker) Answer(slot int) (int, bool) {
	opt, ok := t.answers[slot]
	return opt, ok
}

// Answers returns a copy of the answer map.
func (t *AnswerTracker) Answers() map[int]int {
	out := make(map[int]int, len(t.answers))
	for k, v := range t.answers {
		out[k] = v
	}
	return out
}

// AnsweredIn counts answered slots in [from, to).
func (t *AnswerTracker) AnsweredIn(from, to int) int {
	n := 0
	for slot := range t.answers {
		if slot >= from && slot < to {
			n++
		}
	}
	return n
}

// Close freezes the tracker; later writes fail with ErrSessionClosed.
func (t *AnswerTracker) Close() { t.closed = true }

// Bookmarks is the set of slots flagged for review. Before Freeze a mark can be
// toggled; afterwards marks can only be added.
type Bookmarks struct {
	marks  map[int]struct{}
	frozen bool
}

// NewBookmarks creates an empty bookmark set.
func NewBookmarks() *Bookmarks {
	return &Bookmarks{marks: make(map[int]struct{})}
}

// Toggle flips the mark on slot. It reports whether the slot is marked
// afterwards and whether the call added a new mark.
func (b *Bookmarks) Toggle(slot int) (marked, added bool) {
	if _, ok := b.marks[slot]; ok {
		if b.frozen {
			return true, false
		}
		delete(b.marks, slot)
		return false, false
	}
	b.marks[slot] = struct{}{}
	return true, true
}

// Has reports whether slot is marked.
func (b *Bookmarks) Has(slot int) bool {
	_, ok := b.marks[slot]
	return ok
}

// Freeze makes existing marks permanent.
func (b *Bookmarks) Freeze() { b.frozen = true }

// Slots returns the marked slots in ascending order.
func (b *Bookmarks) Slots() []int {
	out := make([]int, 0, len(b.marks))
	for s := range b.marks {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}
