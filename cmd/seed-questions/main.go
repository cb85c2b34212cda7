package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/database"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/model"
	"github.com/stemsi/exstem-prep/internal/repository"
	"github.com/stemsi/exstem-prep/internal/service"
)

// seed-questions loads a JSON file into the static question pool. The file is
// either an array of questions or {"questions": [...]}, using the same fields
// as the admin seeding endpoint.
func main() {
	var (
		path      string
		batchSize int
	)
	flag.StringVar(&path, "file", "questions.json", "Path to the questions JSON file")
	flag.IntVar(&batchSize, "batch", 500, "Questions inserted per statement")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	questions, err := readQuestions(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to read questions")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	questionService := service.NewQuestionService(repository.NewQuestionRepository(pool), rdb, cfg.StaticCacheTTL, log)

	fmt.Printf("=== Seeding %d static questions ===\n", len(questions))

	if batchSize <= 0 {
		batchSize = len(questions)
	}
	inserted := 0
	for start := 0; start < len(questions); start += batchSize {
		end := min(start+batchSize, len(questions))
		n, err := questionService.Seed(ctx, questions[start:end])
		if err != nil {
			log.Fatal().Err(err).Int("offset", start).Msg("Seeding failed")
		}
		inserted += n
	}

	counts, err := questionService.Counts(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count static pool")
	}

	fmt.Printf("Inserted %d questions. Pool now holds:\n", inserted)
	for _, c := range counts {
		fmt.Printf("  %-12s %d\n", c.Subject, c.Count)
	}
}

func readQuestions(path string) ([]model.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []model.SeedQuestionRequest
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped model.SeedQuestionsRequest
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		items = wrapped.Questions
	}

	out := make([]model.Question, 0, len(items))
	for i, it := range items {
		if len(it.Options) != model.OptionCount || it.CorrectAnswerIndex == nil {
			return nil, fmt.Errorf("question %d: need %d options and a correct_answer_index", i, model.OptionCount)
		}
		out = append(out, it.ToQuestion())
	}
	return out, nil
}
