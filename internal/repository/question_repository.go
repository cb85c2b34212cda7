package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-prep/internal/model"
)

// QuestionRepository handles static question pool data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListBySubject retrieves the static pool of a subject, matched case-insensitively.
func (r *QuestionRepository) ListBySubject(ctx context.Context, subject string) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, question_text, options, correct_answer_index, explanation, subject, difficulty, is_important
		 FROM static_questions WHERE lower(subject) = lower($1)
		 ORDER BY created_at, id`, subject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			options []string
			diff    string
		)
		if err := rows.Scan(&q.ID, &q.Text, &options, &q.CorrectAnswerIndex, &q.Explanation, &q.Subject, &diff, &q.IsImportant); err != nil {
			return nil, err
		}
		copy(q.Options[:], options)
		q.Difficulty = model.ParseDifficulty(diff)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// BulkInsert stores questions in one statement and returns how many were inserted.
func (r *QuestionRepository) BulkInsert(ctx context.Context, qs []model.Question) (int, error) {
	if len(qs) == 0 {
		return 0, nil
	}

	n := len(qs)
	subjects := make([]string, n)
	texts := make([]string, n)
	// Options are passed flattened; each question owns model.OptionCount consecutive entries.
	options := make([]string, 0, n*model.OptionCount)
	correct := make([]int16, n)
	explanations := make([]string, n)
	difficulties := make([]string, n)
	important := make([]bool, n)

	for i, q := range qs {
		subjects[i] = strings.TrimSpace(q.Subject)
		texts[i] = q.Text
		options = append(options, q.Options[:]...)
		correct[i] = int16(q.CorrectAnswerIndex)
		explanations[i] = q.Explanation
		difficulties[i] = string(q.Difficulty)
		important[i] = q.IsImportant
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO static_questions
		   (subject, question_text, options, correct_answer_index, explanation, difficulty, is_important)
		 SELECT u.subject, u.question_text,
		        ($3::text[])[(u.ord - 1) * 4 + 1 : u.ord * 4],
		        u.correct_answer_index, u.explanation, u.difficulty, u.is_important
		 FROM UNNEST($1::text[], $2::text[], $4::smallint[], $5::text[], $6::text[], $7::bool[])
		      WITH ORDINALITY AS u (subject, question_text, correct_answer_index, explanation, difficulty, is_important, ord)`,
		subjects, texts, options, correct, explanations, difficulties, important,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CountBySubject returns the pool size of every subject.
func (r *QuestionRepository) CountBySubject(ctx context.Context) ([]model.SubjectCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT subject, COUNT(*) FROM static_questions GROUP BY subject ORDER BY subject`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []model.SubjectCount
	for rows.Next() {
		var c model.SubjectCount
		if err := rows.Scan(&c.Subject, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
