// Package router configures the risk server's HTTP API.
//
// Routes configured:
//   - POST /predict[?persist=false] - Classify one patient record (JSON or form body)
//   - POST /predictions - Persist a prediction computed elsewhere
//   - GET /predictions/recent?limit=N - Newest stored predictions
//   - GET /dashboard - Aggregate statistics over the stored history
//   - GET /healthz - Store health check
//   - GET /metrics - Prometheus metrics endpoint
//
// Failures are reported as {"error": ..., "kind": ..., "field": ...} with
// 422 for rejected input, 502 for classifier failures and 503 when the
// store is unavailable.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/gjson"

	"github.com/HatiCode/glucoguard/pkg/errs"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/httpx"
	"github.com/HatiCode/glucoguard/pkg/inference"
	"github.com/HatiCode/glucoguard/pkg/models"
	"github.com/HatiCode/glucoguard/pkg/storage"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 500
	maxBodyBytes       = 64 << 10
)

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	Prediction  int             `json:"prediction"`
	Probability float64         `json:"probability"`
	Version     string          `json:"model_version"`
	Record      *storage.Record `json:"record,omitempty"`
}

// SetupRoutes configures HTTP endpoints for the risk server. gatherer
// backs /metrics; nil uses the default Prometheus registry.
func SetupRoutes(svc *inference.Service, gatherer prometheus.Gatherer, timeout time.Duration, logger *slog.Logger) *http.ServeMux {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{svc: svc, timeout: timeout, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /predict", h.predict)
	mux.HandleFunc("POST /predictions", h.persist)
	mux.HandleFunc("GET /predictions/recent", h.recent)
	mux.HandleFunc("GET /dashboard", h.dashboard)

	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return svc.Ping(ctx)
	}))

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

type handlers struct {
	svc     *inference.Service
	timeout time.Duration
	logger  *slog.Logger
}

func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	persist := true
	if v := r.URL.Query().Get("persist"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteMessage(w, http.StatusBadRequest, "persist must be a boolean")
			return
		}
		persist = b
	}

	raw, err := decodeInput(w, r)
	if err != nil {
		httpx.WriteFailure(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	out, record := h.svc.Predict(ctx, raw, persist)
	if !out.OK() {
		httpx.WriteFailure(w, out.Err)
		return
	}

	h.write(w, http.StatusOK, PredictResponse{
		Prediction:  out.Result.Label,
		Probability: out.Result.Probability,
		Version:     h.svc.Predictor().Version(),
		Record:      record,
	})
}

// persist handles POST /predictions with body
// {"input": {...}, "result": {"prediction": 0|1, "probability": p}}.
func (h *handlers) persist(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httpx.WriteFailure(w, &errs.InputTypeError{Field: "body", Reason: err.Error()})
		return
	}
	if !gjson.ValidBytes(body) {
		httpx.WriteFailure(w, &errs.InputTypeError{Field: "body", Reason: "malformed JSON"})
		return
	}

	root := gjson.ParseBytes(body)
	input := root.Get("input")
	if !input.IsObject() {
		httpx.WriteFailure(w, &errs.InputTypeError{Field: "input", Reason: "expected a JSON object"})
		return
	}
	raw, err := features.ParseJSON([]byte(input.Raw))
	if err != nil {
		httpx.WriteFailure(w, err)
		return
	}
	if err := raw.Validate(); err != nil {
		httpx.WriteFailure(w, err)
		return
	}

	result, err := decodeResult(root.Get("result"), h.svc.Predictor().Threshold())
	if err != nil {
		httpx.WriteFailure(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	record, err := h.svc.Persist(ctx, raw, result)
	if err != nil {
		httpx.WriteFailure(w, err)
		return
	}
	h.write(w, http.StatusCreated, record)
}

func (h *handlers) recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httpx.WriteMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.svc.Recent(ctx, limit)
	if err != nil {
		httpx.WriteFailure(w, err)
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	h.write(w, http.StatusOK, records)
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.svc.Summary(ctx)
	if err != nil {
		httpx.WriteFailure(w, err)
		return
	}
	h.write(w, http.StatusOK, stats)
}

func (h *handlers) write(w http.ResponseWriter, status int, v any) {
	if err := httpx.WriteJSON(w, status, v); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

// decodeInput reads a RawInput from a JSON or form-encoded body.
func decodeInput(w http.ResponseWriter, r *http.Request) (features.RawInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return features.RawInput{}, &errs.InputTypeError{Field: "body", Reason: err.Error()}
		}
		values := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			values[k] = r.PostForm.Get(k)
		}
		return features.ParseForm(values)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return features.RawInput{}, &errs.InputTypeError{Field: "body", Reason: err.Error()}
	}
	return features.ParseJSON(body)
}

// decodeResult reads a precomputed result. The label must be the one the
// serving threshold assigns to the probability.
func decodeResult(res gjson.Result, threshold float64) (models.Result, error) {
	if !res.IsObject() {
		return models.Result{}, &errs.InputTypeError{Field: "result", Reason: "expected a JSON object"}
	}

	label := res.Get("prediction")
	if label.Type != gjson.Number || (label.Raw != "0" && label.Raw != "1") {
		return models.Result{}, &errs.InputTypeError{Field: "prediction", Value: label.Raw, Reason: "must be 0 or 1"}
	}
	p := res.Get("probability")
	if p.Type != gjson.Number || p.Float() < 0 || p.Float() > 1 {
		return models.Result{}, &errs.InputTypeError{Field: "probability", Value: p.Raw, Reason: "must be a number in [0, 1]"}
	}

	result := models.Result{Label: int(label.Int()), Probability: p.Float()}
	if want := models.Label(result.Probability, threshold); result.Label != want {
		return models.Result{}, &errs.InputTypeError{
			Field:  "prediction",
			Value:  result.Label,
			Reason: fmt.Sprintf("probability %v implies prediction %d at threshold %v", result.Probability, want, threshold),
		}
	}
	return result, nil
}
