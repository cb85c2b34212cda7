package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_NonPositiveDurationsFallBack(t *testing.T) {
	t.Setenv("FULL_TEST_MINUTES", "0")
	t.Setenv("SECONDS_PER_QUESTION", "-3")
	t.Setenv("SUBJECT_QUESTION_COUNT", "0")

	cfg := Load()
	assert.Equal(t, 180*time.Minute, cfg.FullTestDuration)
	assert.Equal(t, 60, cfg.SecondsPerQuestion)
	assert.Equal(t, 30, cfg.SubjectQuestionCount)
}

func TestLoad_ReadsOverrides(t *testing.T) {
	t.Setenv("FULL_TEST_MINUTES", "90")
	t.Setenv("SECONDS_PER_QUESTION", "45")
	t.Setenv("ALLOWED_ORIGINS", " https://a.test , ,https://b.test")

	cfg := Load()
	assert.Equal(t, 90*time.Minute, cfg.FullTestDuration)
	assert.Equal(t, 45, cfg.SecondsPerQuestion)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
}
