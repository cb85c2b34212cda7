package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-prep/internal/model"
)

// AttemptRepository handles finished test attempts.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Insert stores one attempt. Re-inserting a session is a no-op.
func (r *AttemptRepository) Insert(ctx context.Context, a *model.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts
		   (session_id, candidate_id, test_kind, subject, score, total, accuracy, duration_minutes, submit_reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id) DO NOTHING`,
		a.SessionID, a.CandidateID, a.TestKind, a.Subject, a.Score, a.Total, a.Accuracy,
		a.DurationMinutes, a.SubmitReason, createdAt(a.CreatedAt),
	)
	return err
}

// InsertBatch stores many attempts with a single UNNEST insert.
func (r *AttemptRepository) InsertBatch(ctx context.Context, batch []model.Attempt) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	sessionIDs := make([]uuid.UUID, n)
	candidates := make([]int, n)
	kinds := make([]string, n)
	subjects := make([]*string, n)
	scores := make([]int, n)
	totals := make([]int, n)
	accuracies := make([]int, n)
	durations := make([]int, n)
	reasons := make([]string, n)
	createdAts := make([]time.Time, n)

	for i, a := range batch {
		sessionIDs[i] = a.SessionID
		candidates[i] = a.CandidateID
		kinds[i] = string(a.TestKind)
		subjects[i] = a.Subject
		scores[i] = a.Score
		totals[i] = a.Total
		accuracies[i] = a.Accuracy
		durations[i] = a.DurationMinutes
		reasons[i] = a.SubmitReason
		createdAts[i] = createdAt(a.CreatedAt)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO attempts
			(session_id, candidate_id, test_kind, subject, score, total, accuracy, duration_minutes, submit_reason, created_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::text[],
			$4::text[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::int[],
			$9::text[],
			$10::timestamptz[]
		)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionIDs, candidates, kinds, subjects, scores, totals, accuracies, durations, reasons, createdAts,
	)
	return err
}

// ListByCandidate returns a candidate's attempts, newest first.
func (r *AttemptRepository) ListByCandidate(ctx context.Context, candidateID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE candidate_id = $1`, candidateID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, candidate_id, test_kind, subject, score, total, accuracy, duration_minutes, submit_reason, created_at
		 FROM attempts
		 WHERE candidate_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, candidateID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.SessionID, &a.CandidateID, &a.TestKind, &a.Subject, &a.Score, &a.Total,
			&a.Accuracy, &a.DurationMinutes, &a.SubmitReason, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
