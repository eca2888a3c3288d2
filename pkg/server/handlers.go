package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
	"github.com/malbeclabs/sensorlake/pkg/router"
)

const (
	maxRequestBytes = 64 << 10
	maxDatasetRows  = 1000
)

type RespondRequest struct {
	Instruction string `json:"instruction"`
}

type RenderErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type RespondResponse struct {
	RequestID   string           `json:"request_id"`
	Kind        router.Kind      `json:"kind"`
	Input       string           `json:"input"`
	Answer      string           `json:"answer,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Code        string           `json:"code,omitempty"`
	Degraded    string           `json:"degraded,omitempty"`
	ToolsUsed   []string         `json:"tools_used,omitempty"`
	Image       string           `json:"image,omitempty"`
	RenderError *RenderErrorBody `json:"render_error,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

type DatasetRow struct {
	Fecha       string  `json:"fecha"`
	Temperatura float64 `json:"temperatura"`
	Humedad     float64 `json:"humedad"`
}

type DatasetResponse struct {
	Summary dataset.Summary `json:"summary"`
	Rows    []DatasetRow    `json:"rows,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.cfg.Assistant.Handle(ctx, req.Instruction)
	if err != nil {
		s.writeError(w, r, statusFor(err), err.Error())
		return
	}

	resp := RespondResponse{
		RequestID:   requestIDFrom(r.Context()),
		Kind:        res.Response.Kind,
		Input:       res.Response.Input,
		Answer:      res.Response.Answer,
		Explanation: res.Response.Explanation,
		Code:        res.Response.Code,
		Degraded:    res.Response.Degraded,
		ToolsUsed:   res.Response.ToolsUsed,
		DurationMs:  res.Duration.Milliseconds(),
	}
	if res.PNG != nil {
		resp.Image = base64.StdEncoding.EncodeToString(res.PNG)
	}
	if res.RenderError != nil {
		resp.RenderError = &RenderErrorBody{Message: res.RenderError.Message, Code: res.RenderError.Code}
	}
	writeJSON(w, http.StatusOK, resp)
}

// dataset returns the cleaned dataset summary and, with ?limit=N, the last N
// rows.
func (s *Server) dataset(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxDatasetRows {
			s.writeError(w, r, http.StatusBadRequest, "limit must be between 0 and "+strconv.Itoa(maxDatasetRows))
			return
		}
		limit = n
	}

	ds, err := s.cfg.Assistant.Dataset(r.Context())
	if err != nil {
		s.writeError(w, r, statusFor(err), err.Error())
		return
	}

	resp := DatasetResponse{Summary: ds.Summary()}
	if limit > 0 {
		records := ds.Records()
		if len(records) > limit {
			records = records[len(records)-limit:]
		}
		resp.Rows = make([]DatasetRow, 0, len(records))
		for _, rec := range records {
			resp.Rows = append(resp.Rows, DatasetRow{
				Fecha:       rec.Fecha.Format(dataset.TimeLayout),
				Temperatura: rec.Temperatura,
				Humedad:     rec.Humedad,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	var loadErr *dataset.LoadError
	switch {
	case errors.Is(err, router.ErrEmptyInstruction):
		return http.StatusBadRequest
	case errors.As(err, &loadErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if status >= http.StatusInternalServerError {
		s.log.Error("server: request failed", "path", r.URL.Path, "status", status, "error", msg)
	}
	writeJSON(w, status, errorResponse{Error: strings.TrimSpace(msg), RequestID: requestIDFrom(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
