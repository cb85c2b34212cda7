package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
)

var errFakeGenerator = errors.New("generator unavailable")

func testQuestion(subject string, n int) model.Question {
	return model.Question{
		ID:                 fmt.Sprintf("%s-%d", subject, n),
		Text:               fmt.Sprintf("%s question %d", subject, n),
		Options:            [model.OptionCount]string{"a", "b", "c", "d"},
		CorrectAnswerIndex: n % model.OptionCount,
		Explanation:        "because",
		Subject:            subject,
		Difficulty:         model.DifficultyMedium,
	}
}

// fakeGenerator answers every request with count questions unless told otherwise.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]bool
	failWin map[int]bool
	short   map[string]int
	delay   map[string]time.Duration
	block   map[int]chan struct{}
	counter int
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		fail:    make(map[string]bool),
		failWin: make(map[int]bool),
		short:   make(map[string]int),
		delay:   make(map[string]time.Duration),
		block:   make(map[int]chan struct{}),
	}
}

func (g *fakeGenerator) GenerateQuestions(ctx context.Context, subject string, count, window int) ([]model.Question, error) {
	g.mu.Lock()
	g.calls = append(g.calls, fmt.Sprintf("%d:%s:%d", window, subject, count))
	fail := g.fail[subject] || g.failWin[window]
	short, hasShort := g.short[subject]
	delay := g.delay[subject]
	block := g.block[window]
	g.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errFakeGenerator
	}
	if hasShort {
		count = min(count, short)
	}

	out := make([]model.Question, 0, count)
	g.mu.Lock()
	for i := 0; i < count; i++ {
		g.counter++
		out = append(out, testQuestion(subject, g.counter))
	}
	g.mu.Unlock()
	return out, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeStatic struct {
	pool map[string][]model.Question
}

func (s fakeStatic) GetStaticQuestions(_ context.Context, subject string, limit int) []model.Question {
	qs := s.pool[subject]
	if len(qs) > limit {
		qs = qs[:limit]
	}
	return qs
}

func staticPool(subject string, n int) []model.Question {
	out := make([]model.Question, n)
	for i := range out {
		q := testQuestion(subject, 1000+i)
		q.Text = fmt.Sprintf("static %s %d", subject, i)
		out[i] = q
	}
	return out
}

// twoWindowBlueprint is a compact full test: two windows of A:2 B:2.
func twoWindowBlueprint() Blueprint {
	return Blueprint{
		Kind: model.TestKindFull,
		Windows: [][]SubjectQuota{
			{{"A", 2}, {"B", 2}},
			{{"B", 2}, {"A", 2}},
		},
	}
}

func newTestController(bp Blueprint, gen Generator, static StaticStore, policy WindowAdvancementPolicy, hooks Hooks) *Controller {
	src := NewQuestionSource(gen, static, SourceConfig{BatchSize: 2, Concurrency: 4}, zerolog.Nop())
	c, err := NewController(Config{
		CandidateID:  7,
		Blueprint:    bp,
		TotalSeconds: 60,
		Policy:       policy,
		Hooks:        hooks,
	}, src, zerolog.Nop())
	if err != nil {
		panic(err)
	}
	return c
}
