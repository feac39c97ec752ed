//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/HatiCode/glucoguard/cmd/riskserver/metrics"
	"github.com/HatiCode/glucoguard/cmd/riskserver/router"
	"github.com/HatiCode/glucoguard/pkg/analytics"
	"github.com/HatiCode/glucoguard/pkg/artifacts"
	"github.com/HatiCode/glucoguard/pkg/features"
	"github.com/HatiCode/glucoguard/pkg/inference"
	"github.com/HatiCode/glucoguard/pkg/models"
	"github.com/HatiCode/glucoguard/pkg/storage"
)

const bundlePath = "../../examples/artifacts/diabetes_v1.json"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "glucoguard",
				"POSTGRES_PASSWORD": "glucoguard",
				"POSTGRES_DB":       "glucoguard",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get postgres port: %v", err)
	}
	return fmt.Sprintf("postgres://glucoguard:glucoguard@%s:%s/glucoguard?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("Failed to start redis: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate redis: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

func newServer(t *testing.T, store storage.Store, aggregator analytics.Aggregator) *httptest.Server {
	t.Helper()

	set, err := artifacts.Load(bundlePath)
	if err != nil {
		t.Fatalf("Failed to load artifacts: %v", err)
	}
	predictor, err := inference.NewPredictor(set)
	if err != nil {
		t.Fatalf("Failed to build predictor: %v", err)
	}

	reg := prometheus.NewRegistry()
	svc := inference.NewService(predictor, store, aggregator, discard(), metrics.New(reg))
	srv := httptest.NewServer(router.SetupRoutes(svc, reg, 5*time.Second, discard()))
	t.Cleanup(srv.Close)
	return srv
}

// patients cycles through every category so each dashboard group is
// populated.
func patients(n int) []features.RawInput {
	genders := []string{"Female", "Male", "Other"}
	smoking := []string{"never", "current", "former", "No Info", "ever", "not current"}

	out := make([]features.RawInput, n)
	for i := range out {
		out[i] = features.RawInput{
			Gender:            genders[i%len(genders)],
			Age:               float64(18 + (i*7)%65),
			Hypertension:      i % 2,
			HeartDisease:      (i / 3) % 2,
			SmokingHistory:    smoking[i%len(smoking)],
			BMI:               19 + float64(i%20),
			HbA1cLevel:        4.5 + float64(i%9)*0.5,
			BloodGlucoseLevel: float64(90 + (i*13)%180),
		}
	}
	return out
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(buf)))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func getJSON[T any](t *testing.T, url string) T {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s status = %d: %s", url, resp.StatusCode, body)
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode %s: %v", url, err)
	}
	return v
}

// exercise drives the API end to end and checks that the dashboard agrees
// with the predictions the server returned.
func exercise(t *testing.T, srv *httptest.Server) {
	t.Helper()

	var positives int
	for _, p := range patients(30) {
		resp := postJSON(t, srv.URL+"/predict", p)
		var pr router.PredictResponse
		if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
			t.Fatalf("Failed to decode prediction: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || pr.Record == nil {
			t.Fatalf("predict status = %d, record = %v", resp.StatusCode, pr.Record)
		}
		positives += pr.Prediction
	}

	resp := postJSON(t, srv.URL+"/predict", map[string]any{
		"gender": "Female", "age": 40, "hypertension": 0, "heart_disease": 0,
		"smoking_history": "sometimes", "bmi": 25, "HbA1c_level": 5, "blood_glucose_level": 100,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("unknown category status = %d, want 422", resp.StatusCode)
	}

	recent := getJSON[[]storage.Record](t, srv.URL+"/predictions/recent?limit=5")
	if len(recent) != 5 || recent[0].ID <= recent[4].ID {
		t.Errorf("recent = %+v", recent)
	}

	stats := getJSON[analytics.Stats](t, srv.URL+"/dashboard")
	if stats.Overall.Total != 30 || stats.Overall.PositiveCases != positives {
		t.Errorf("overall = %+v, want 30 total and %d positives", stats.Overall, positives)
	}
	if len(stats.Genders) != 3 || stats.Genders[0].Count != 10 {
		t.Errorf("genders = %+v", stats.Genders)
	}
	if len(stats.Smoking) != 6 {
		t.Errorf("smoking = %+v", stats.Smoking)
	}

	health, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", health.StatusCode)
	}
}

func TestRiskServer_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dsn := startPostgres(t)
	store, err := storage.OpenSQL(context.Background(), storage.Postgres, dsn)
	if err != nil {
		t.Fatalf("Failed to open postgres store: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	exercise(t, newServer(t, store, analytics.NewSQLAggregator(store)))
}

func TestRiskServer_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	store, err := storage.NewRedisStore(startRedis(t), "", 0, "e2e")
	if err != nil {
		t.Fatalf("Failed to open redis store: %v", err)
	}
	defer store.Close()

	exercise(t, newServer(t, store, analytics.NewRecordAggregator(store)))
}

func TestAggregators_AgreeOnPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	store, err := storage.OpenSQL(ctx, storage.Postgres, startPostgres(t))
	if err != nil {
		t.Fatalf("Failed to open postgres store: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	// Quarter probabilities sum exactly in both float64 and SQL.
	for i, p := range patients(240) {
		result := models.Result{Label: i % 2, Probability: float64(i%4) / 4}
		if _, err := store.Append(ctx, p, result); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	fromSQL, err := analytics.NewSQLAggregator(store).Summary(ctx)
	if err != nil {
		t.Fatalf("SQL Summary() error = %v", err)
	}
	fromRecords, err := analytics.NewRecordAggregator(store).Summary(ctx)
	if err != nil {
		t.Fatalf("record Summary() error = %v", err)
	}

	a, _ := json.Marshal(fromSQL)
	b, _ := json.Marshal(fromRecords)
	if string(a) != string(b) {
		t.Errorf("aggregators disagree:\nsql:     %s\nrecords: %s", a, b)
	}
}
