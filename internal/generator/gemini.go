package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/model"
	"google.golang.org/genai"
)

// ErrUnavailable is returned when no generator backend is configured.
var ErrUnavailable = errors.New("question generator is not configured")

// completer sends a prompt to a model and returns its raw text reply.
type completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Gemini generates questions with the Gemini API.
type Gemini struct {
	llm     completer
	timeout time.Duration
	log     zerolog.Logger
}

type geminiCompleter struct {
	client *genai.Client
	model  string
}

func (g geminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", errors.New("model returned no text")
	}
	return text, nil
}

// NewGemini creates a Gemini-backed generator.
func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	log.Info().Str("model", modelName).Msg("Gemini generator initialized")
	return newGemini(geminiCompleter{client: client, model: modelName}, timeout, log), nil
}

func newGemini(llm completer, timeout time.Duration, log zerolog.Logger) *Gemini {
	return &Gemini{
		llm:     llm,
		timeout: timeout,
		log:     log.With().Str("component", "generator").Logger(),
	}
}

// GenerateQuestions asks the model for count questions on subject. The reply
// may hold fewer valid questions than requested.
func (g *Gemini) GenerateQuestions(ctx context.Context, subject string, count, windowIndex int) ([]model.Question, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := g.llm.Complete(ctx, BuildPrompt(subject, count, windowIndex))
	if err != nil {
		return nil, err
	}

	qs, err := ParseQuestions(raw, subject)
	if err != nil {
		return nil, err
	}

	g.log.Debug().
		Str("subject", subject).
		Int("requested", count).
		Int("received", len(qs)).
		Int("window", windowIndex).
		Dur("took", time.Since(start)).
		Msg("Questions generated")
	return qs, nil
}

// BuildPrompt renders the generation prompt for one batch.
func BuildPrompt(subject string, count, windowIndex int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d multiple-choice exam questions for the subject %q.\n", count, subject)
	fmt.Fprintf(&b, "This batch belongs to section %d of a university entrance practice test.\n", windowIndex+1)
	b.WriteString("Mix Easy, Medium and Hard difficulty. Mark questions that cover core syllabus topics as important.\n")
	b.WriteString("Every question has exactly 4 options and exactly one correct option.\n")
	b.WriteString("Respond with a JSON array only, no prose, using this shape:\n")
	b.WriteString(`[{"question":"...","options":["...","...","...","..."],"correctAnswerIndex":0,"explanation":"...","subject":"`)
	b.WriteString(subject)
	b.WriteString(`","difficulty":"Easy|Medium|Hard","isImportant":false}]`)
	return b.String()
}

type rawQuestion struct {
	Question           string   `json:"question"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
	Subject            string   `json:"subject"`
	Difficulty         string   `json:"difficulty"`
	IsImportant        bool     `json:"isImportant"`
}

// ParseQuestions decodes a model reply. Markdown fences are stripped and
// malformed entries are skipped; an unparseable reply is an error.
func ParseQuestions(raw, subject string) ([]model.Question, error) {
	body := stripFences(raw)

	var items []rawQuestion
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		var wrapped struct {
			Questions []rawQuestion `json:"questions"`
		}
		if err2 := json.Unmarshal([]byte(body), &wrapped); err2 != nil {
			return nil, fmt.Errorf("failed to decode model reply: %w", err)
		}
		items = wrapped.Questions
	}

	out := make([]model.Question, 0, len(items))
	for _, it := range items {
		if len(it.Options) != model.OptionCount || it.CorrectAnswerIndex == nil {
			continue
		}
		text := it.Question
		if text == "" {
			text = it.Text
		}
		q := model.Question{
			Text:               strings.TrimSpace(text),
			CorrectAnswerIndex: *it.CorrectAnswerIndex,
			Explanation:        strings.TrimSpace(it.Explanation),
			Subject:            strings.TrimSpace(it.Subject),
			Difficulty:         model.ParseDifficulty(it.Difficulty),
			IsImportant:        it.IsImportant,
		}
		if q.Subject == "" {
			q.Subject = subject
		}
		for i, opt := range it.Options {
			q.Options[i] = strings.TrimSpace(opt)
		}
		if q.Validate() != nil {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Unavailable is used when no API key is configured. Every call fails, so
// sessions are served from the static pool alone.
type Unavailable struct{}

func (Unavailable) GenerateQuestions(context.Context, string, int, int) ([]model.Question, error) {
	return nil, ErrUnavailable
}
