// Package fake serves a synthetic scale export API for local runs and tests.
package fake

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scalesync/internal/httpx"
)

// maxPoints bounds one export response.
const maxPoints = 50000

// Server is an in-memory stand-in for the upstream export API.
type Server struct {
	scales   []string
	token    string
	latency  time.Duration
	failRate float64
	origin   time.Time
	logger   *zap.Logger

	mu    sync.Mutex
	rnd   *rand.Rand
	calls map[string]int64
}

// Option configures the server.
type Option func(*Server)

// WithScales sets the catalog.
func WithScales(ids ...string) Option {
	return func(s *Server) { s.scales = append([]string(nil), ids...) }
}

// WithToken requires Authorization: Bearer <token>.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithLatency delays every export.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithFailRate answers that share of exports with 502.
func WithFailRate(rate float64) Option {
	return func(s *Server) { s.failRate = math.Max(0, math.Min(1, rate)) }
}

// WithOrigin sets the first instant with data; nothing is served before it.
func WithOrigin(t time.Time) Option {
	return func(s *Server) { s.origin = t.UTC() }
}

// WithSeed makes failure injection reproducible.
func WithSeed(seed int64) Option {
	return func(s *Server) { s.rnd = rand.New(rand.NewSource(seed)) }
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer constructs a server with two scales and data from 2024-01-01.
func NewServer(opts ...Option) *Server {
	s := &Server{
		scales: []string{"scale-1", "scale-2"},
		origin: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		logger: zap.NewNop(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		calls:  make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP surface: GET /scale, POST /export, GET /healthz.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.authorize)
		r.Get("/scale", s.handleScales)
		r.Post("/export", s.handleExport)
	})
	return r
}

// Calls returns how many exports were served for scale.
func (s *Server) Calls(scale string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[scale]
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			httpx.RespondErrorString(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleScales(w http.ResponseWriter, _ *http.Request) {
	items := make([]map[string]any, 0, len(s.scales))
	for i, id := range s.scales {
		items = append(items, map[string]any{
			"id":                id,
			"serial_number":     "SN-" + strings.ToUpper(id),
			"hardware_key":      "hw-" + id,
			"latitude":          48.1 + float64(i)*0.01,
			"longitude":         11.5 + float64(i)*0.01,
			"last_transmission": time.Now().UTC().Truncate(time.Hour).Format(time.RFC3339),
		})
	}
	httpx.RespondJSON(w, http.StatusOK, items)
}

type exportRequest struct {
	Scale          string `json:"scale"`
	TimeStart      int64  `json:"time_start"`
	TimeEnd        int64  `json:"time_end"`
	TimeResolution string `json:"time_resolution"`
	Format         string `json:"format"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "invalid json body")
		return
	}
	step, ok := map[string]time.Duration{"hourly": time.Hour, "daily": 24 * time.Hour}[req.TimeResolution]
	if !ok {
		httpx.RespondErrorString(w, http.StatusBadRequest, "time_resolution must be hourly or daily")
		return
	}
	if !s.known(req.Scale) {
		httpx.RespondErrorString(w, http.StatusNotFound, "unknown scale")
		return
	}
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-r.Context().Done():
			return
		}
	}
	if s.fail(req.Scale) {
		httpx.RespondErrorString(w, http.StatusBadGateway, "injected failure")
		return
	}

	start := time.Unix(req.TimeStart, 0).UTC()
	end := time.Unix(req.TimeEnd, 0).UTC()
	if start.Before(s.origin) {
		start = s.origin
	}
	data := make([]map[string]any, 0)
	for t := start.Truncate(step); t.Before(end) && len(data) < maxPoints; t = t.Add(step) {
		if t.Before(start) {
			continue
		}
		data = append(data, sample(req.Scale, t))
	}
	s.logger.Debug("fake export",
		zap.String("scale", req.Scale),
		zap.String("resolution", req.TimeResolution),
		zap.Int("points", len(data)),
	)
	httpx.RespondJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *Server) known(scale string) bool {
	for _, id := range s.scales {
		if id == scale {
			return true
		}
	}
	return false
}

func (s *Server) fail(scale string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[scale]++
	return s.failRate > 0 && s.rnd.Float64() < s.failRate
}

// sample is deterministic per scale and instant so repeated exports agree.
// Every 24th hour reports a zero temperature and a string humidity, which the
// normalizer drops field by field.
func sample(scale string, t time.Time) map[string]any {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scale))
	base := 20 + float64(h.Sum32()%20)
	hour := float64(t.Unix()/3600) / 24 * 2 * math.Pi

	item := map[string]any{
		"time":        t.Format(time.RFC3339),
		"weight":      round(base + 2*math.Sin(hour)),
		"temperature": round(15 + 8*math.Sin(hour-math.Pi/2)),
		"humidity":    round(60 + 15*math.Cos(hour)),
		"brood":       34.5,
	}
	if t.Hour() == 0 {
		item["temperature"] = 0
		item["humidity"] = "n/a"
	}
	return item
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
