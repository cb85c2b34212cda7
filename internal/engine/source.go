package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
	"golang.org/x/sync/errgroup"
)

// Generator produces fresh questions for a subject. It may return fewer than
// count questions and may fail.
type Generator interface {
	GenerateQuestions(ctx context.Context, subject string, count, windowIndex int) ([]model.Question, error)
}

// StaticStore is the best-effort static question pool. It never fails; an
// empty slice means no data.
type StaticStore interface {
	GetStaticQuestions(ctx context.Context, subject string, limit int) []model.Question
}

// Source labels where a batch came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceStatic    Source = "static"
)

// Batch is a group of questions destined for one subject sub-range of a window.
// Offset is relative to the window start; Span is the sub-range length.
type Batch struct {
	Window    int
	Offset    int
	Span      int
	Subject   string
	Source    Source
	Questions []model.Question
}

// EmitFunc places a batch and reports how many questions were actually written.
type EmitFunc func(Batch) int

// SourceConfig tunes how windows are fetched.
type SourceConfig struct {
	// BatchSize caps the number of questions requested per generator call.
	BatchSize int
	// Concurrency caps in-flight generator calls per window.
	Concurrency int
}

// QuestionSource merges the generator and the static pool and sequences a
// window's questions by subject.
type QuestionSource struct {
	gen    Generator
	static StaticStore
	cfg    SourceConfig
	log    zerolog.Logger
}

// NewQuestionSource creates a QuestionSource. gen may be nil, in which case every
// slot is served from the static pool.
func NewQuestionSource(gen Generator, static StaticStore, cfg SourceConfig, log zerolog.Logger) *QuestionSource {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if static == nil {
		static = emptyStore{}
	}
	return &QuestionSource{
		gen:    gen,
		static: static,
		cfg:    cfg,
		log:    log.With().Str("component", "question_source").Logger(),
	}
}

type emptyStore struct{}

func (emptyStore) GetStaticQuestions(context.Context, string, int) []model.Question { return nil }

type quotaJob struct {
	quota  SubjectQuota
	offset int
}

type chunkJob struct {
	quota int
	count int
}

// FetchWindow streams the questions of window w through emit, one batch per
// generator call plus one static top-up per subject. Batches may arrive in any
// order; each is confined to its subject's sub-range. It returns the number of
// questions written. The error wraps ErrGenerationFailure when any generator
// call failed, even if the static pool covered the shortfall.
func (s *QuestionSource) FetchWindow(ctx context.Context, bp Blueprint, w int, emit EmitFunc) (int, error) {
	if w < 0 || w >= bp.WindowCount() {
		return 0, fmt.Errorf("window %d out of range", w)
	}

	quotas := make([]quotaJob, 0, len(bp.Windows[w]))
	offset := 0
	for _, q := range bp.Windows[w] {
		quotas = append(quotas, quotaJob{quota: q, offset: offset})
		offset += q.Count
	}

	var chunks []chunkJob
	if s.gen != nil {
		for i, qj := range quotas {
			want := qj.quota.Count - bp.StaticBlend
			for want > 0 {
				n := min(want, s.cfg.BatchSize)
				chunks = append(chunks, chunkJob{quota: i, count: n})
				want -= n
			}
		}
	}

	var (
		mu       sync.Mutex
		written  = make([]int, len(quotas))
		failures []error
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, ch := range chunks {
		g.Go(func() error {
			qj := quotas[ch.quota]
			subject := qj.quota.Subject

			qs, err := s.gen.GenerateQuestions(ctx, subject, ch.count, w)
			if err != nil {
				s.log.Warn().Err(err).
					Int("window", w).
					Str("subject", subject).
					Int("count", ch.count).
					Msg("Generator call failed")
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", subject, err))
				mu.Unlock()
				return nil
			}

			n := emit(Batch{
				Window:    w,
				Offset:    qj.offset,
				Span:      qj.quota.Count,
				Subject:   subject,
				Source:    SourceGenerated,
				Questions: sanitize(qs, subject, ch.count),
			})

			mu.Lock()
			written[ch.quota] += n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, qj := range quotas {
		if ctx.Err() != nil {
			break
		}
		shortfall := qj.quota.Count - written[i]
		if shortfall <= 0 {
			continue
		}
		qs := s.static.GetStaticQuestions(ctx, qj.quota.Subject, shortfall)
		if len(qs) == 0 {
			s.log.Warn().
				Int("window", w).
				Str("subject", qj.quota.Subject).
				Int("shortfall", shortfall).
				Msg("Static pool has no questions for shortfall")
			continue
		}
		written[i] += emit(Batch{
			Window:    w,
			Offset:    qj.offset,
			Span:      qj.quota.Count,
			Subject:   qj.quota.Subject,
			Source:    SourceStatic,
			Questions: sanitize(qs, qj.quota.Subject, shortfall),
		})
	}

	total := 0
	for _, n := range written {
		total += n
	}

	if len(failures) > 0 {
		return total, fmt.Errorf("%w: %w", ErrGenerationFailure, errors.Join(failures...))
	}
	return total, nil
}

// sanitize drops invalid or off-subject questions and caps the batch at limit.
// Generated questions are stamped with the requested subject spelling.
func sanitize(qs []model.Question, subject string, limit int) []model.Question {
	out := make([]model.Question, 0, min(len(qs), limit))
	for _, q := range qs {
		if len(out) == limit {
			break
		}
		if q.Subject == "" {
			q.Subject = subject
		}
		if !strings.EqualFold(q.Subject, subject) {
			continue
		}
		q.Subject = subject
		if q.Validate() != nil {
			continue
		}
		out = append(out, q)
	}
	return out
}
