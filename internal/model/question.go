package model

import (
	"errors"
	"fmt"
	"strings"
)

// OptionCount is the fixed number of answer options per question.
const OptionCount = 4

// Difficulty grades a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty maps free-form input onto a Difficulty, defaulting to Medium.
func ParseDifficulty(s string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy
	case "hard":
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// Question is a single multiple-choice question. Immutable once delivered to a session.
type Question struct {
	ID                 string              `json:"id,omitempty"`
	Text               string              `json:"text"`
	Options            [OptionCount]string `json:"options"`
	CorrectAnswerIndex int                 `json:"correct_answer_index"`
	Explanation        string              `json:"explanation"`
	Subject            string              `json:"subject"`
	Difficulty         Difficulty          `json:"difficulty"`
	IsImportant        bool                `json:"is_important"`
}

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("question text is empty")
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("option %d is empty", i)
		}
	}
	if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= OptionCount {
		return fmt.Errorf("correct answer index %d out of range", q.CorrectAnswerIndex)
	}
	if strings.TrimSpace(q.Subject) == "" {
		return errors.New("subject is empty")
	}
	return nil
}

// ForCandidate strips the answer key and explanation.
func (q Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:          q.ID,
		Text:        q.Text,
		Options:     q.Options,
		Subject:     q.Subject,
		Difficulty:  q.Difficulty,
		IsImportant: q.IsImportant,
	}
}

// QuestionForCandidate is a question without the correct answer, sent while a test is running.
type QuestionForCandidate struct {
	ID          string              `json:"id,omitempty"`
	Text        string              `json:"text"`
	Options     [OptionCount]string `json:"options"`
	Subject     string              `json:"subject"`
	Difficulty  Difficulty          `json:"difficulty"`
	IsImportant bool                `json:"is_important"`
}

// SeedQuestionRequest is the admin payload for one static-pool question.
type SeedQuestionRequest struct {
	Text               string   `json:"text" binding:"required,min=1,max=4000"`
	Options            []string `json:"options" binding:"required,len=4,dive,required,max=1000"`
	CorrectAnswerIndex *int     `json:"correct_answer_index" binding:"required,min=0,max=3"`
	Explanation        string   `json:"explanation" binding:"max=4000"`
	Subject            string   `json:"subject" binding:"required,min=2,max=100"`
	Difficulty         string   `json:"difficulty" binding:"omitempty,oneof=Easy Medium Hard"`
	IsImportant        bool     `json:"is_important"`
}

// ToQuestion converts a validated request into a Question.
func (r SeedQuestionRequest) ToQuestion() Question {
	q := Question{
		Text:        r.Text,
		Explanation: r.Explanation,
		Subject:     r.Subject,
		Difficulty:  ParseDifficulty(r.Difficulty),
		IsImportant: r.IsImportant,
	}
	copy(q.Options[:], r.Options)
	if r.CorrectAnswerIndex != nil {
		q.CorrectAnswerIndex = *r.CorrectAnswerIndex
	}
	return q
}

// SeedQuestionsRequest is the payload for bulk seeding the static pool.
type SeedQuestionsRequest struct {
	Questions []SeedQuestionRequest `json:"questions" binding:"required,min=1,max=1000,dive"`
}

// SubjectCount is the number of static questions stored for one subject.
type SubjectCount struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}
