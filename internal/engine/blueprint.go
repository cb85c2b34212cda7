package engine

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-prep/internal/model"
)

// SubjectQuota is the number of questions one subject contributes to a window.
// Quotas occupy contiguous sub-ranges of the window, in declaration order.
type SubjectQuota struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

// Blueprint is the fixed subject-distribution table of a test.
type Blueprint struct {
	Kind    model.TestKind
	Windows [][]SubjectQuota
	// StaticBlend is how many slots of each quota are taken from the static pool
	// instead of the generator.
	StaticBlend int
}

// DefaultFullBlueprint is the 200-question, four-window full test.
func DefaultFullBlueprint() Blueprint {
	return Blueprint{
		Kind: model.TestKindFull,
		Windows: [][]SubjectQuota{
			{{"Mathematics", 20}, {"Physics", 15}, {"Chemistry", 15}},
			{{"Biology", 20}, {"Physics", 15}, {"Chemistry", 15}},
			{{"Mathematics", 20}, {"Biology", 15}, {"English", 15}},
			{{"English", 20}, {"Mathematics", 15}, {"Biology", 15}},
		},
	}
}

// SubjectBlueprint is a single-window test of one subject.
func SubjectBlueprint(subject string, count, staticBlend int) Blueprint {
	return Blueprint{
		Kind:        model.TestKindSubject,
		Windows:     [][]SubjectQuota{{{Subject: subject, Count: count}}},
		StaticBlend: staticBlend,
	}
}

// Validate checks that the blueprint is non-empty and every window has the same size.
func (b Blueprint) Validate() error {
	if len(b.Windows) == 0 {
		return errors.New("blueprint has no windows")
	}
	size := b.windowTotal(0)
	if size <= 0 {
		return errors.New("blueprint window 0 is empty")
	}
	for w := range b.Windows {
		if got := b.windowTotal(w); got != size {
			return fmt.Errorf("window %d has %d questions, want %d", w, got, size)
		}
		for _, q := range b.Windows[w] {
			if q.Count <= 0 || q.Subject == "" {
				return fmt.Errorf("window %d has an invalid quota %+v", w, q)
			}
		}
	}
	if b.StaticBlend < 0 {
		return errors.New("static blend is negative")
	}
	return nil
}

func (b Blueprint) windowTotal(w int) int {
	n := 0
	for _, q := range b.Windows[w] {
		n += q.Count
	}
	return n
}

// WindowSize is the number of slots per window.
func (b Blueprint) WindowSize() int { return b.windowTotal(0) }

// WindowCount is the number of windows.
func (b Blueprint) WindowCount() int { return len(b.Windows) }

// TotalQuestions is WindowSize * WindowCount.
func (b Blueprint) TotalQuestions() int { return b.WindowSize() * b.WindowCount() }

// Subjects returns the distinct subjects in first-appearance order.
func (b Blueprint) Subjects() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range b.Windows {
		for _, q := range w {
			if _, ok := seen[q.Subject]; !ok {
				seen[q.Subject] = struct{}{}
				out = append(out, q.Subject)
			}
		}
	}
	return out
}

// SubjectSequence is the expected subject of every slot, in slot order.
func (b Blueprint) SubjectSequence() []string {
	out := make([]string, 0, b.TotalQuestions())
	for _, w := range b.Windows {
		for _, q := range w {
			for i := 0; i < q.Count; i++ {
				out = append(out, q.Subject)
			}
		}
	}
	return out
}
