package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/HatiCode/glucoguard/pkg/errs"
)

// BYOMModel implements a classifier that delegates predictions to an
// external HTTP service. The service receives the reduced feature vector
// and must answer with the label and positive-class probability:
//
//	POST {endpoint}
//	{"features": [0.12, -1.3, ...]}
//
//	200 OK
//	{"label": 1, "probability": 0.83}
//
// The answer is checked against the configured threshold so a remote
// model cannot silently use a different decision policy.
type BYOMModel struct {
	endpoint  string
	inputDim  int
	threshold float64
	client    *http.Client
}

type byomRequest struct {
	Features []float64 `json:"features"`
}

type byomResponse struct {
	Label       *int     `json:"label"`
	Probability *float64 `json:"probability"`
}

// NewBYOMModel creates a BYOM classifier. inputDim may be 0 when the
// remote model's width is unknown; a zero threshold selects
// DefaultThreshold.
func NewBYOMModel(endpoint string, inputDim int, threshold float64) *BYOMModel {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &BYOMModel{
		endpoint:  endpoint,
		inputDim:  inputDim,
		threshold: threshold,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				DisableCompression:  false,
				DisableKeepAlives:   false,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// WithClient replaces the HTTP client, e.g. with one from httpx.NewClient
// that speaks mutual TLS to the remote model.
func (m *BYOMModel) WithClient(client *http.Client) *BYOMModel {
	if client != nil {
		m.client = client
	}
	return m
}

// Name returns the model identifier.
func (m *BYOMModel) Name() string {
	return "byom"
}

// InputDim returns the configured input width.
func (m *BYOMModel) InputDim() int {
	return m.inputDim
}

// Threshold returns the threshold remote answers are checked against.
func (m *BYOMModel) Threshold() float64 {
	return m.threshold
}

// Predict calls the external BYOM HTTP service.
func (m *BYOMModel) Predict(ctx context.Context, reduced []float64) (Result, error) {
	if err := checkVector(m.Name(), reduced, m.inputDim); err != nil {
		return Result{}, err
	}

	body, err := json.Marshal(byomRequest{Features: reduced})
	if err != nil {
		return Result{}, m.fail("marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, m.fail("create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return Result{}, m.fail("http request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Result{}, m.fail(fmt.Sprintf("http %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	var byomResp byomResponse
	if err := json.NewDecoder(resp.Body).Decode(&byomResp); err != nil {
		return Result{}, m.fail("decode response", err)
	}

	if byomResp.Probability == nil || byomResp.Label == nil {
		return Result{}, m.fail("response missing label or probability", nil)
	}
	p, label := *byomResp.Probability, *byomResp.Label

	if math.IsNaN(p) || p < 0 || p > 1 {
		return Result{}, m.fail(fmt.Sprintf("probability %v outside [0, 1]", p), nil)
	}
	if label != 0 && label != 1 {
		return Result{}, m.fail(fmt.Sprintf("label %d outside {0, 1}", label), nil)
	}
	if label != Label(p, m.threshold) {
		return Result{}, m.fail(fmt.Sprintf("label %d disagrees with probability %v at threshold %v", label, p, m.threshold), nil)
	}

	return Result{Label: label, Probability: p}, nil
}

func (m *BYOMModel) fail(reason string, err error) error {
	return &errs.InferenceError{Model: m.Name(), Reason: reason, Err: err}
}
