//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The suite runs against a live server started with the same .env:
//
//	go test -tags e2e ./test/e2e/...
//
// Without GEMINI_API_KEY every slot is served from the static pool seeded here.

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	e2eSubject     = "Physics"
	candidateID    = 990001
)

var (
	baseURL        string
	dbURL          string
	adminToken     string
	candidateToken string
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")
	cfg := config.Load()

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	dbURL = cfg.DatabaseURL

	if err := cleanup(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	auth := service.NewAuthService(cfg)
	var err error
	if adminToken, err = auth.GenerateToken(service.TokenTypeAdmin, 1); err != nil {
		fmt.Printf("Admin token: %v\n", err)
		os.Exit(1)
	}
	if candidateToken, err = auth.GenerateToken(service.TokenTypeCandidate, candidateID); err != nil {
		fmt.Printf("Candidate token: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func cleanup() error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `DELETE FROM attempts WHERE candidate_id = $1`, candidateID); err != nil {
		return fmt.Errorf("cleanup attempts: %w", err)
	}
	if _, err := conn.Exec(ctx, `DELETE FROM bookmarks WHERE candidate_id = $1`, candidateID); err != nil {
		return fmt.Errorf("cleanup bookmarks: %w", err)
	}
	return nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func TestE2EFlow(t *testing.T) {
	var sessionID string
	var snap engine.Snapshot

	t.Run("SeedStaticPool", func(t *testing.T) {
		questions := make([]map[string]any, 40)
		for i := range questions {
			questions[i] = map[string]any{
				"text":                 "E2E physics question " + strconv.Itoa(i),
				"options":              []string{"one", "two", "three", "four"},
				"correct_answer_index": i % 4,
				"subject":              e2eSubject,
			}
		}
		resp, env := call(t, http.MethodPost, "/admin/questions", map[string]any{"questions": questions}, adminToken)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(env.Data))
	})

	t.Run("StartSubjectSession", func(t *testing.T) {
		resp, env := call(t, http.MethodPost, "/candidate/sessions", map[string]any{"test_kind": "SUBJECT", "subject": e2eSubject}, candidateToken)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(env.Data))
		snap = decodeSnapshot(t, env)
		sessionID = snap.Session.ID.String()
		assert.Equal(t, engine.PhaseActive, snap.Phase)
	})

	t.Run("SecondStartRejected", func(t *testing.T) {
		resp, env := call(t, http.MethodPost, "/candidate/sessions", map[string]any{"test_kind": "FULL"}, candidateToken)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "SESSION_ALREADY_ACTIVE", env.Error.Code)
	})

	t.Run("AnswerAndBookmark", func(t *testing.T) {
		require.NotEmpty(t, sessionID)
		resp, _ := call(t, http.MethodPost, "/candidate/sessions/"+sessionID+"/answers", map[string]any{"slot": 0, "option": 2}, candidateToken)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = call(t, http.MethodPost, "/candidate/sessions/"+sessionID+"/bookmarks", map[string]any{"slot": 0}, candidateToken)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Submit", func(t *testing.T) {
		resp, env := call(t, http.MethodPost, "/candidate/sessions/"+sessionID+"/submit", nil, candidateToken)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(env.Data))
		snap = decodeSnapshot(t, env)
		require.NotNil(t, snap.Result)
		assert.Equal(t, engine.PhaseReviewing, snap.Phase)
		assert.NotEmpty(t, snap.Review)
	})

	t.Run("AttemptPersisted", func(t *testing.T) {
		ctx := context.Background()
		conn, err := pgx.Connect(ctx, dbURL)
		require.NoError(t, err)
		defer conn.Close(ctx)

		var score, total int
		require.Eventually(t, func() bool {
			err := conn.QueryRow(ctx, `SELECT score, total FROM attempts WHERE session_id = $1`, sessionID).Scan(&score, &total)
			return err == nil
		}, 15*time.Second, 500*time.Millisecond)
		assert.Equal(t, snap.Result.Score, score)
		assert.Equal(t, snap.Result.Total, total)

		resp, env := call(t, http.MethodGet, "/candidate/attempts", nil, candidateToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(env.Data), sessionID)
	})

	t.Run("BookmarkPersisted", func(t *testing.T) {
		require.Eventually(t, func() bool {
			resp, env := call(t, http.MethodGet, "/candidate/bookmarks?subject="+e2eSubject, nil, candidateToken)
			return resp.StatusCode == http.StatusOK && bytes.Contains(env.Data, []byte(`"question"`))
		}, 15*time.Second, 500*time.Millisecond)
	})

	t.Run("Leave", func(t *testing.T) {
		resp, _ := call(t, http.MethodDelete, "/candidate/sessions/"+sessionID, nil, candidateToken)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = call(t, http.MethodGet, "/candidate/sessions/"+sessionID, nil, candidateToken)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

// Helpers

func call(t *testing.T, method, path string, body any, token string) (*http.Response, envelope) {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &env)
	return resp, env
}

func decodeSnapshot(t *testing.T, env envelope) engine.Snapshot {
	t.Helper()
	var d struct {
		Snapshot engine.Snapshot `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &d))
	return d.Snapshot
}
