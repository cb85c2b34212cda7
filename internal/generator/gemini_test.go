package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	reply  string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("expected a deadline")
	}
	return s.reply, s.err
}

const twoQuestions = "```json\n" + `[
  {"question":"2+2?","options":["3","4","5","6"],"correctAnswerIndex":1,"explanation":"basic","subject":"Mathematics","difficulty":"easy","isImportant":true},
  {"question":"3*3?","options":["6","9","12","3"],"correctAnswerIndex":1,"explanation":"times","difficulty":"HARD"}
]` + "\n```"

func TestParseQuestions(t *testing.T) {
	qs, err := ParseQuestions(twoQuestions, "Mathematics")
	require.NoError(t, err)
	require.Len(t, qs, 2)

	assert.Equal(t, "2+2?", qs[0].Text)
	assert.Equal(t, [4]string{"3", "4", "5", "6"}, qs[0].Options)
	assert.Equal(t, 1, qs[0].CorrectAnswerIndex)
	assert.Equal(t, model.DifficultyEasy, qs[0].Difficulty)
	assert.True(t, qs[0].IsImportant)
	assert.Equal(t, "Mathematics", qs[1].Subject)
	assert.Equal(t, model.DifficultyHard, qs[1].Difficulty)
}

func TestParseQuestions_SkipsMalformed(t *testing.T) {
	raw := `{"questions":[
		{"question":"ok","options":["a","b","c","d"],"correctAnswerIndex":3},
		{"question":"three options","options":["a","b","c"],"correctAnswerIndex":0},
		{"question":"no answer","options":["a","b","c","d"]},
		{"question":"bad index","options":["a","b","c","d"],"correctAnswerIndex":7},
		{"question":"","options":["a","b","c","d"],"correctAnswerIndex":0}
	]}`

	qs, err := ParseQuestions(raw, "Physics")
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "ok", qs[0].Text)
	assert.Equal(t, "Physics", qs[0].Subject)
}

func TestParseQuestions_Garbage(t *testing.T) {
	_, err := ParseQuestions("I cannot help with that.", "Physics")
	assert.Error(t, err)
}

func TestGemini_GenerateQuestions(t *testing.T) {
	stub := &stubCompleter{reply: twoQuestions}
	g := newGemini(stub, time.Minute, zerolog.Nop())

	qs, err := g.GenerateQuestions(context.Background(), "Mathematics", 2, 1)
	require.NoError(t, err)
	assert.Len(t, qs, 2)
	assert.Contains(t, stub.prompt, `"Mathematics"`)
	assert.Contains(t, stub.prompt, "Generate 2 ")
	assert.Contains(t, stub.prompt, "section 2")
}

func TestGemini_PropagatesErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	g := newGemini(&stubCompleter{err: boom}, time.Minute, zerolog.Nop())

	_, err := g.GenerateQuestions(context.Background(), "Biology", 5, 0)
	assert.ErrorIs(t, err, boom)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.GenerateQuestions(context.Background(), "Biology", 5, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}
