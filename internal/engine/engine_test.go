package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(qs ...model.Question) []Slot {
	out := make([]Slot, len(qs))
	for i, q := range qs {
		out[i] = Slot{State: SlotLoaded, Question: q}
	}
	return out
}

func TestScore(t *testing.T) {
	q := testQuestion("A", 0) // correct index 0

	tests := []struct {
		name    string
		slots   []Slot
		answers map[int]int
		want    Result
	}{
		{
			name:  "no loaded slots",
			slots: make([]Slot, 3),
			want:  Result{},
		},
		{
			name:    "two of three rounds half up",
			slots:   loaded(q, q, q),
			answers: map[int]int{0: 0, 1: 0, 2: 1},
			want:    Result{Score: 2, Total: 3, Accuracy: 67},
		},
		{
			name:    "one of eight rounds half up from 12.5",
			slots:   loaded(q, q, q, q, q, q, q, q),
			answers: map[int]int{0: 0},
			want:    Result{Score: 1, Total: 8, Accuracy: 13},
		},
		{
			name:    "locked slots are excluded",
			slots:   append(loaded(q, q), Slot{}, Slot{}),
			answers: map[int]int{0: 0, 1: 0},
			want:    Result{Score: 2, Total: 2, Accuracy: 100},
		},
		{
			name:    "unanswered counts as wrong",
			slots:   loaded(q, q, q, q),
			answers: map[int]int{0: 0},
			want:    Result{Score: 1, Total: 4, Accuracy: 25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.slots, tt.answers))
		})
	}
}

func TestCountdown_ExpiresOnce(t *testing.T) {
	var mu sync.Mutex
	expired := 0
	var ticks []int
	c := NewCountdown(2, func(r int) {
		mu.Lock()
		ticks = append(ticks, r)
		mu.Unlock()
	}, func() {
		mu.Lock()
		expired++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Tick()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, c.Remaining())
	assert.True(t, c.Stopped())
	mu.Lock()
	assert.Equal(t, 1, expired)
	assert.Len(t, ticks, 2)
	mu.Unlock()
}

func TestCountdown_StopFreezes(t *testing.T) {
	c := NewCountdown(5, nil, func() { t.Fatal("expired after stop") })
	c.Tick()
	c.Stop()
	c.Stop()
	c.Tick()
	assert.Equal(t, 4, c.Remaining())
}

func TestTimeBudget(t *testing.T) {
	b := TimeBudget{Full: 180 * time.Minute, SecondsPerQuestion: 60}
	assert.Equal(t, 10800, b.SecondsFor(DefaultFullBlueprint()))
	assert.Equal(t, 1800, b.SecondsFor(SubjectBlueprint("Physics", 30, 5)))
}

func TestBlueprint(t *testing.T) {
	bp := DefaultFullBlueprint()
	require.NoError(t, bp.Validate())
	assert.Equal(t, 50, bp.WindowSize())
	assert.Equal(t, 4, bp.WindowCount())
	assert.Equal(t, 200, bp.TotalQuestions())
	assert.Equal(t, []string{"Mathematics", "Physics", "Chemistry", "Biology", "English"}, bp.Subjects())

	seq := bp.SubjectSequence()
	require.Len(t, seq, 200)
	assert.Equal(t, "Mathematics", seq[19])
	assert.Equal(t, "Physics", seq[20])
	assert.Equal(t, "Biology", seq[50])
	assert.Equal(t, "English", seq[150])

	bad := Blueprint{Windows: [][]SubjectQuota{{{"A", 2}}, {{"A", 3}}}}
	assert.Error(t, bad.Validate())
	assert.Error(t, Blueprint{}.Validate())
}

func TestPolicies(t *testing.T) {
	done := WindowView{Size: 4, Loaded: 4, Answered: 4, AnsweredLoaded: 4, Load: LoadDone}
	half := WindowView{Size: 4, Loaded: 4, Answered: 2, AnsweredLoaded: 2, Load: LoadDone}
	degraded := WindowView{Size: 4, Loaded: 3, Answered: 3, AnsweredLoaded: 3, Load: LoadPartial}
	loading := WindowView{Size: 4, Loaded: 3, Answered: 3, AnsweredLoaded: 3, Load: LoadInFlight}
	empty := WindowView{Size: 4, Load: LoadInFlight}

	g := GatedPolicy{}
	assert.True(t, g.CanAdvance(done, nil))
	assert.False(t, g.CanAdvance(half, nil))
	assert.True(t, g.CanAdvance(degraded, nil))
	assert.False(t, g.CanAdvance(loading, nil))
	assert.False(t, g.LoadsAhead())

	e := EagerPolicy{}
	assert.True(t, e.CanAdvance(half, &done))
	assert.False(t, e.CanAdvance(half, &empty))
	assert.False(t, e.CanAdvance(done, nil))
	assert.True(t, e.LoadsAhead())

	p, err := PolicyByName("eager")
	require.NoError(t, err)
	assert.Equal(t, "eager", p.Name())
	p, err = PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, "gated", p.Name())
	_, err = PolicyByName("random")
	assert.Error(t, err)
}

func TestAnswerTracker(t *testing.T) {
	loader := NewWindowLoader(twoWindowBlueprint(), nil, zerolog.Nop())
	loader.place(Batch{Window: 0, Offset: 0, Span: 2, Questions: []model.Question{testQuestion("A", 1)}})

	tr := NewAnswerTracker(loader)
	require.NoError(t, tr.SetAnswer(0, 1))
	assert.ErrorIs(t, tr.SetAnswer(1, 1), ErrSlotNotReady)
	assert.ErrorIs(t, tr.SetAnswer(0, -1), ErrInvalidOption)
	assert.ErrorIs(t, tr.SetAnswer(9, 1), ErrSlotOutOfRange)
	assert.Equal(t, 1, tr.AnsweredIn(0, 4))

	tr.Close()
	assert.ErrorIs(t, tr.SetAnswer(0, 2), ErrSessionClosed)
	opt, ok := tr.Answer(0)
	assert.True(t, ok)
	assert.Equal(t, 1, opt)
}

func TestWindowLoader_FillsFirstLockedSlotInSubRange(t *testing.T) {
	var batches []int
	loader := NewWindowLoader(twoWindowBlueprint(), nil, zerolog.Nop())
	loader.onBatch = func(w, n int) { batches = append(batches, n) }

	b := Batch{Window: 1, Offset: 2, Span: 2}
	b.Questions = []model.Question{testQuestion("A", 1)}
	assert.Equal(t, 1, loader.place(b))

	b.Questions = []model.Question{testQuestion("A", 2), testQuestion("A", 3), testQuestion("A", 4)}
	assert.Equal(t, 1, loader.place(b))

	slots := loader.Slots()
	assert.Equal(t, SlotLocked, slots[5].State)
	assert.Equal(t, "A-1", slots[6].Question.ID)
	assert.Equal(t, "A-2", slots[7].Question.ID)
	assert.Equal(t, 2, loader.LoadedIn(1))
	assert.Equal(t, []int{1, 1}, batches)

	loader.Seal()
	assert.Equal(t, 0, loader.place(Batch{Window: 1, Offset: 0, Span: 2, Questions: []model.Question{testQuestion("B", 1)}}))
	assert.False(t, loader.IsLoaded(4))
}

func TestWindowLoader_RequestOrder(t *testing.T) {
	src := NewQuestionSource(newFakeGenerator(), nil, SourceConfig{}, zerolog.Nop())
	loader := NewWindowLoader(twoWindowBlueprint(), src, zerolog.Nop())

	_, err := loader.Begin(1)
	assert.ErrorIs(t, err, ErrWindowOutOfOrder)

	n, err := loader.LoadWindow(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, LoadDone, loader.State(0))

	// Repeated loads are no-ops.
	n, err = loader.LoadWindow(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = loader.Begin(5)
	assert.Error(t, err)
}

func TestWindowLoader_NothingDelivered(t *testing.T) {
	gen := newFakeGenerator()
	gen.short["A"] = 0
	gen.short["B"] = 0
	src := NewQuestionSource(gen, nil, SourceConfig{}, zerolog.Nop())
	loader := NewWindowLoader(twoWindowBlueprint(), src, zerolog.Nop())

	n, err := loader.LoadWindow(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoQuestions)
	assert.Equal(t, 0, n)
	assert.Equal(t, LoadFailed, loader.State(0))
	assert.Equal(t, "UNAVAILABLE", loader.State(0).String())
}

func TestQuestionSource_StaticBlendAndChunking(t *testing.T) {
	gen := newFakeGenerator()
	static := fakeStatic{pool: map[string][]model.Question{"Physics": staticPool("Physics", 3)}}
	src := NewQuestionSource(gen, static, SourceConfig{BatchSize: 4, Concurrency: 2}, zerolog.Nop())

	var mu sync.Mutex
	bySource := map[Source]int{}
	n, err := src.FetchWindow(context.Background(), SubjectBlueprint("Physics", 13, 3), 0, func(b Batch) int {
		mu.Lock()
		defer mu.Unlock()
		bySource[b.Source] += len(b.Questions)
		return len(b.Questions)
	})
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, 10, bySource[SourceGenerated])
	assert.Equal(t, 3, bySource[SourceStatic])
	// 10 generated questions in chunks of at most 4.
	assert.Equal(t, 3, gen.callCount())
}

func TestQuestionSource_DropsInvalidAndOffSubject(t *testing.T) {
	good := testQuestion("Physics", 1)
	noText := testQuestion("Physics", 2)
	noText.Text = ""
	other := testQuestion("Biology", 3)
	lower := testQuestion("physics", 4)

	out := sanitize([]model.Question{good, noText, other, lower}, "Physics", 10)
	require.Len(t, out, 2)
	assert.Equal(t, "Physics", out[1].Subject)

	assert.Len(t, sanitize([]model.Question{good, good, good}, "Physics", 2), 2)
}

func TestQuestionSource_NoGenerator(t *testing.T) {
	static := fakeStatic{pool: map[string][]model.Question{"A": staticPool("A", 2), "B": staticPool("B", 1)}}
	src := NewQuestionSource(nil, static, SourceConfig{}, zerolog.Nop())

	n, err := src.FetchWindow(context.Background(), twoWindowBlueprint(), 0, func(b Batch) int {
		return len(b.Questions)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
