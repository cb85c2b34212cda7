package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/model"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SessionsStarted    *prometheus.CounterVec
	SessionsFailed     *prometheus.CounterVec
	SessionsActive     prometheus.Gauge
	Submissions        *prometheus.CounterVec
	GenerationFailures *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	QuestionsDelivered *prometheus.CounterVec
	PersistenceErrors  *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "endpoint"},
		),
		SessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prep_sessions_started_total",
				Help: "Test sessions started",
			},
			[]string{"test_kind"},
		),
		SessionsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prep_sessions_failed_total",
				Help: "Test sessions aborted because the first window could not load",
			},
			[]string{"test_kind"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "prep_sessions_live",
				Help: "Sessions currently held in memory",
			},
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prep_submissions_total",
				Help: "Submitted sessions by trigger",
			},
			[]string{"reason"},
		),
		GenerationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prep_generation_failures_total",
				Help: "Failed generator calls",
			},
			[]string{"subject"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prep_generation_duration_seconds",
				Help:    "Latency of generator calls",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"subject"},
		),
		QuestionsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prep_questions_delivered_total",
				Help: "Questions handed to sessions by source",
			},
			[]string{"source"},
		),
		PersistenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prep_persistence_errors_total",
				Help: "Failed enqueue or database writes",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCounter,
		m.RequestDuration,
		m.SessionsStarted,
		m.SessionsFailed,
		m.SessionsActive,
		m.Submissions,
		m.GenerationFailures,
		m.GenerationDuration,
		m.QuestionsDelivered,
		m.PersistenceErrors,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestCounter.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

type generator struct {
	next engine.Generator
	m    *Metrics
}

// Generator wraps gen so that call latency, failures and delivered questions are recorded.
func (m *Metrics) Generator(gen engine.Generator) engine.Generator {
	return generator{next: gen, m: m}
}

func (g generator) GenerateQuestions(ctx context.Context, subject string, count, windowIndex int) ([]model.Question, error) {
	start := time.Now()
	qs, err := g.next.GenerateQuestions(ctx, subject, count, windowIndex)
	g.m.GenerationDuration.WithLabelValues(subject).Observe(time.Since(start).Seconds())
	if err != nil {
		g.m.GenerationFailures.WithLabelValues(subject).Inc()
		return nil, err
	}
	g.m.QuestionsDelivered.WithLabelValues(string(engine.SourceGenerated)).Add(float64(len(qs)))
	return qs, nil
}

type staticStore struct {
	next engine.StaticStore
	m    *Metrics
}

// StaticStore wraps store so that questions served from the static pool are counted.
func (m *Metrics) StaticStore(store engine.StaticStore) engine.StaticStore {
	return staticStore{next: store, m: m}
}

func (s staticStore) GetStaticQuestions(ctx context.Context, subject string, limit int) []model.Question {
	qs := s.next.GetStaticQuestions(ctx, subject, limit)
	s.m.QuestionsDelivered.WithLabelValues(string(engine.SourceStatic)).Add(float64(len(qs)))
	return qs
}
