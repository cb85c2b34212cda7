package engine

import "fmt"

// WindowView is the derived state of one window.
type WindowView struct {
	Index    int
	Size     int
	Loaded   int
	Answered int
	// AnsweredLoaded counts answered slots among the loaded ones.
	AnsweredLoaded int
	Load           LoadState
}

// Complete reports whether every slot of the window is answered.
func (w WindowView) Complete() bool { return w.Answered == w.Size }

// Exhausted reports whether the load finished and every slot that did load is answered.
// A window degraded by generation failure is exhausted once its loaded slots are answered.
func (w WindowView) Exhausted() bool {
	return w.Load.Settled() && w.AnsweredLoaded == w.Loaded
}

// WindowAdvancementPolicy decides how windows are loaded and when the candidate
// may move past the current one. A session uses one policy for its whole life.
type WindowAdvancementPolicy interface {
	Name() string
	// LoadsAhead reports whether window n+1 is requested as soon as window n settles.
	LoadsAhead() bool
	// CanAdvance reports whether the candidate may leave current. next is nil on the last window.
	CanAdvance(current WindowView, next *WindowView) bool
	// SubmitsOnExhaust reports whether advancing past the last window submits the session.
	SubmitsOnExhaust() bool
}

// GatedPolicy loads window n+1 only after the candidate finishes window n.
type GatedPolicy struct{}

func (GatedPolicy) Name() string           { return "gated" }
func (GatedPolicy) LoadsAhead() bool       { return false }
func (GatedPolicy) SubmitsOnExhaust() bool { return true }

func (GatedPolicy) CanAdvance(current WindowView, _ *WindowView) bool {
	return current.Complete() || current.Exhausted()
}

// EagerPolicy loads every window back to back; navigation is allowed into any
// window whose load has started delivering.
type EagerPolicy struct{}

func (EagerPolicy) Name() string           { return "eager" }
func (EagerPolicy) LoadsAhead() bool       { return true }
func (EagerPolicy) SubmitsOnExhaust() bool { return false }

func (EagerPolicy) CanAdvance(_ WindowView, next *WindowView) bool {
	return next != nil && (next.Loaded > 0 || next.Load.Settled())
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (WindowAdvancementPolicy, error) {
	switch name {
	case "", "gated":
		return GatedPolicy{}, nil
	case "eager":
		return EagerPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown window policy %q", name)
	}
}
