// Command fake_upstream serves a synthetic scale export API for local runs.
package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"scalesync/internal/httpx"
	"scalesync/internal/observability/logging"
	"scalesync/internal/upstream/fake"
)

func main() {
	logger, err := logging.New(getenvDefault("LOG_LEVEL", "info"), getenvDefault("LOG_FORMAT", "console"), "fake-upstream")
	if err != nil {
		logger = zap.NewExample()
	}
	defer func() { _ = logger.Sync() }()

	addr := getenvDefault("FAKE_UPSTREAM_ADDR", ":18080")
	opts := []fake.Option{
		fake.WithToken(os.Getenv("FAKE_UPSTREAM_TOKEN")),
		fake.WithLatency(time.Duration(getenvIntDefault("FAKE_UPSTREAM_LATENCY_MS", 0)) * time.Millisecond),
		fake.WithFailRate(getenvFloatDefault("FAKE_UPSTREAM_FAIL_RATE", 0)),
		fake.WithLogger(logger),
	}
	if scales := splitCSV(os.Getenv("FAKE_UPSTREAM_SCALES")); len(scales) > 0 {
		opts = append(opts, fake.WithScales(scales...))
	}
	if origin, err := time.Parse(time.RFC3339, os.Getenv("FAKE_UPSTREAM_ORIGIN")); err == nil {
		opts = append(opts, fake.WithOrigin(origin))
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           httpx.Logging(logger)(fake.NewServer(opts...).Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("fake upstream listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("fake upstream stopped", zap.Error(err))
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	parsed, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
