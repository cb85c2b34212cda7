package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-prep/internal/model"
)

// BookmarkRepository handles bookmarked questions.
type BookmarkRepository struct {
	pool *pgxpool.Pool
}

// NewBookmarkRepository creates a new BookmarkRepository.
func NewBookmarkRepository(pool *pgxpool.Pool) *BookmarkRepository {
	return &BookmarkRepository{pool: pool}
}

// Upsert stores a bookmark. The same question bookmarked twice keeps one row.
func (r *BookmarkRepository) Upsert(ctx context.Context, candidateID int, q model.Question) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bookmarks
		   (candidate_id, subject, question_text, options, correct_answer_index, explanation, difficulty, is_important)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (candidate_id, subject, question_text) DO UPDATE
		 SET created_at = NOW()`,
		candidateID, q.Subject, q.Text, q.Options[:], q.CorrectAnswerIndex, q.Explanation, string(q.Difficulty), q.IsImportant,
	)
	return err
}

// ListByCandidate returns a candidate's bookmarks, newest first, optionally filtered by subject.
func (r *BookmarkRepository) ListByCandidate(ctx context.Context, candidateID int, subject string) ([]model.Bookmark, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, candidate_id, subject, question_text, options, correct_answer_index, explanation, difficulty, is_important, created_at
		 FROM bookmarks
		 WHERE candidate_id = $1 AND ($2 = '' OR lower(subject) = lower($2))
		 ORDER BY created_at DESC`, candidateID, subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookmarks []model.Bookmark
	for rows.Next() {
		var (
			b       model.Bookmark
			options []string
			diff    string
		)
		if err := rows.Scan(&b.ID, &b.CandidateID, &b.Question.Subject, &b.Question.Text, &options,
			&b.Question.CorrectAnswerIndex, &b.Question.Explanation, &diff, &b.Question.IsImportant, &b.CreatedAt); err != nil {
			return nil, err
		}
		copy(b.Question.Options[:], options)
		b.Question.Difficulty = model.ParseDifficulty(diff)
		bookmarks = append(bookmarks, b)
	}
	return bookmarks, rows.Err()
}
