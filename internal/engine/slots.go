package engine

import "github.com/stemsi/exstem-prep/internal/model"

// SlotState is the load state of one question position.
type SlotState int

const (
	SlotLocked SlotState = iota
	SlotLoaded
)

func (s SlotState) String() string {
	if s == SlotLoaded {
		return "LOADED"
	}
	return "LOCKED"
}

// Slot is one addressable question position. A slot moves Locked -> Loaded once and never back.
type Slot struct {
	State    SlotState
	Question model.Question
}

// slotArray is the index-addressed arena of all slots in a session. Not safe for
// concurrent use; WindowLoader guards it.
type slotArray struct {
	slots []Slot
}

func newSlotArray(n int) *slotArray {
	return &slotArray{slots: make([]Slot, n)}
}

func (a *slotArray) Len() int { return len(a.slots) }

func (a *slotArray) isLoaded(i int) bool {
	return i >= 0 && i < len(a.slots) && a.slots[i].State == SlotLoaded
}

// fill writes qs, in order, into the first Locked slots of [from, to).
// Questions that do not fit are dropped. Returns how many were written.
func (a *slotArray) fill(from, to int, qs []model.Question) int {
	if from < 0 {
		from = 0
	}
	if to > len(a.slots) {
		to = len(a.slots)
	}

	written := 0
	i := from
	for _, q := range qs {
		for i < to && a.slots[i].State == SlotLoaded {
			i++
		}
		if i >= to {
			break
		}
		a.slots[i] = Slot{State: SlotLoaded, Question: q}
		written++
		i++
	}
	return written
}

func (a *slotArray) loadedIn(from, to int) int {
	n := 0
	for i := from; i < to && i < len(a.slots); i++ {
		if a.slots[i].State == SlotLoaded {
			n++
		}
	}
	return n
}

func (a *slotArray) snapshot() []Slot {
	out := make([]Slot, len(a.slots))
	copy(out, a.slots)
	return out
}
