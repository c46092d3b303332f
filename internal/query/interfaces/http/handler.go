package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scalesync/internal/httpx"
	"scalesync/internal/observability/metrics"
	"scalesync/internal/query/application"
	"scalesync/internal/query/export"
	telemetry "scalesync/internal/telemetry/domain"
)

const defaultRecentN = 24

// Querier is the read side consumed by the handler.
type Querier interface {
	Range(ctx context.Context, req application.RangeRequest) ([]application.Row, error)
	Latest(ctx context.Context, res telemetry.Resolution, entityIDs []string) ([]application.Row, error)
	Recent(ctx context.Context, res telemetry.Resolution, entityID string, n int) ([]application.Row, error)
}

// Handler serves telemetry reads and exports.
type Handler struct {
	query  Querier
	logger *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(query Querier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{query: query, logger: logger}
}

// Register mounts the read routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/v1/telemetry", h.telemetry)
	r.Get("/api/v1/scales/{id}/recent", h.recent)
}

type format struct {
	contentType string
	write       func(w io.Writer, rows []application.Row, title string) error
}

var formats = map[string]format{
	"csv": {"text/csv; charset=utf-8", func(w io.Writer, rows []application.Row, _ string) error {
		return export.WriteCSV(w, rows)
	}},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", func(w io.Writer, rows []application.Row, _ string) error {
		return export.WriteXLSX(w, rows)
	}},
	"pdf": {"application/pdf", export.WritePDF},
}

func (h *Handler) telemetry(w http.ResponseWriter, r *http.Request) {
	if h.query == nil {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "query not ready")
		return
	}
	q := r.URL.Query()

	res, err := parseResolution(q.Get("resolution"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	outFormat := strings.ToLower(strings.TrimSpace(q.Get("format")))
	if outFormat == "" {
		outFormat = "json"
	}
	if _, ok := formats[outFormat]; !ok && outFormat != "json" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "format must be json, csv, xlsx or pdf")
		return
	}
	entityIDs := splitList(q["entity"])

	var (
		rows       []application.Row
		start, end *time.Time
	)
	if latest, _ := strconv.ParseBool(q.Get("latest")); latest {
		rows, err = h.query.Latest(r.Context(), res, entityIDs)
	} else {
		req := application.RangeRequest{Resolution: res, EntityIDs: entityIDs, Fields: splitList(q["fields"])}
		if start, err = parseTime(q.Get("start")); err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "invalid start: "+err.Error())
			return
		}
		if end, err = parseTime(q.Get("end")); err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "invalid end: "+err.Error())
			return
		}
		if raw := q.Get("limit"); raw != "" {
			if req.Limit, err = strconv.Atoi(raw); err != nil {
				httpx.RespondErrorString(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
		}
		req.Start, req.End = start, end
		rows, err = h.query.Range(r.Context(), req)
	}
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}

	if outFormat == "json" {
		httpx.RespondJSON(w, http.StatusOK, rows)
		return
	}
	h.attachment(w, outFormat, export.Filename(entityIDs, res, start, end, outFormat), title(entityIDs, res), rows)
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	if h.query == nil {
		httpx.RespondErrorString(w, http.StatusServiceUnavailable, "query not ready")
		return
	}
	q := r.URL.Query()
	res, err := parseResolution(q.Get("resolution"))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	n := defaultRecentN
	if raw := q.Get("n"); raw != "" {
		if n, err = strconv.Atoi(raw); err != nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "n must be an integer")
			return
		}
	}
	rows, err := h.query.Recent(r.Context(), res, chi.URLParam(r, "id"), n)
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, rows)
}

func (h *Handler) attachment(w http.ResponseWriter, name, filename, docTitle string, rows []application.Row) {
	started := time.Now()
	f := formats[name]
	var buf bytes.Buffer
	if err := f.write(&buf, rows, docTitle); err != nil {
		metrics.ObserveExport(name, metrics.ResultError, time.Since(started))
		h.logger.Error("export failed", zap.String("format", name), zap.Error(err))
		httpx.RespondErrorString(w, http.StatusInternalServerError, "export failed")
		return
	}
	metrics.ObserveExport(name, metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseResolution(raw string) (telemetry.Resolution, error) {
	if strings.TrimSpace(raw) == "" {
		return telemetry.ResolutionHourly, nil
	}
	return telemetry.ParseResolution(raw)
}

// parseTime accepts RFC 3339, a plain date, or Unix seconds.
func parseTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	return nil, fmt.Errorf("%q is not RFC 3339, a date or Unix seconds", raw)
}

// splitList accepts repeated and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func title(entityIDs []string, res telemetry.Resolution) string {
	scope := "all scales"
	if len(entityIDs) > 0 {
		scope = strings.Join(entityIDs, ", ")
	}
	return fmt.Sprintf("Telemetry (%s) - %s", res, scope)
}
