package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"flock-sentinel/internal/config"
	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/vocab"
)

type fakeEvaluator struct {
	mu        sync.Mutex
	submitted []*engine.Observation
	queued    []*engine.Observation
	enqueue   func(*engine.Observation) error
}

func (f *fakeEvaluator) Submit(_ context.Context, obs *engine.Observation) []*engine.Anomaly {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, obs)
	return []*engine.Anomaly{{RuleID: "rule-" + obs.ID, Domain: obs.Domain}}
}

func (f *fakeEvaluator) Enqueue(obs *engine.Observation) error {
	if f.enqueue != nil {
		if err := f.enqueue(obs); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, obs)
	return nil
}

func post(t *testing.T, h *Handler, target, body string) (*httptest.ResponseRecorder, IngestResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleObservations(rec, req)

	var resp IngestResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	return rec, resp
}

func TestHandler_HandleObservations(t *testing.T) {
	t.Run("synchronous returns anomalies", func(t *testing.T) {
		eval := &fakeEvaluator{}
		h := NewHandler(eval)

		rec, resp := post(t, h, "/v1/observations", `{
			"observations": [
				{"id": "a", "domain": "wifi", "fields": {"ssid": "Flock-1"}},
				{"id": "b", "domain": "BLE", "fields": {"name": "Axon"}}
			]
		}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !resp.Success || resp.Accepted != 2 || resp.Rejected != 0 {
			t.Errorf("resp = %+v", resp)
		}
		if len(resp.Anomalies) != 2 {
			t.Fatalf("anomalies = %d, want 2", len(resp.Anomalies))
		}
		if resp.Anomalies[0].RuleID != "rule-a" {
			t.Errorf("RuleID = %q", resp.Anomalies[0].RuleID)
		}
		if eval.submitted[1].Domain != vocab.DomainBluetooth {
			t.Errorf("alias not resolved: %q", eval.submitted[1].Domain)
		}
		if resp.RequestID == "" {
			t.Error("missing request id")
		}
	})

	t.Run("fills id and timestamp", func(t *testing.T) {
		eval := &fakeEvaluator{}
		h := NewHandler(eval)

		post(t, h, "/v1/observations", `{"observations": [{"domain": "cellular", "fields": {"mcc": 310}}]}`)

		if len(eval.submitted) != 1 {
			t.Fatalf("submitted = %d", len(eval.submitted))
		}
		if eval.submitted[0].ID == "" {
			t.Error("ID not assigned")
		}
		if eval.submitted[0].Timestamp.IsZero() {
			t.Error("Timestamp not assigned")
		}
	})

	t.Run("async queues", func(t *testing.T) {
		eval := &fakeEvaluator{}
		h := NewHandler(eval)

		rec, resp := post(t, h, "/v1/observations?async=true",
			`{"observations": [{"domain": "wifi", "fields": {"ssid": "x"}}]}`)

		if rec.Code != http.StatusAccepted {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
		}
		if resp.Accepted != 1 || len(resp.Anomalies) != 0 {
			t.Errorf("resp = %+v", resp)
		}
		if len(eval.queued) != 1 || len(eval.submitted) != 0 {
			t.Errorf("queued = %d, submitted = %d", len(eval.queued), len(eval.submitted))
		}
	})

	t.Run("partial success", func(t *testing.T) {
		h := NewHandler(&fakeEvaluator{})

		rec, resp := post(t, h, "/v1/observations", `{
			"observations": [
				{"domain": "wifi", "fields": {"ssid": "x"}},
				{"domain": "sonar", "fields": {"ping": 1}},
				{"domain": "gnss"}
			]
		}`)

		if rec.Code != http.StatusMultiStatus {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusMultiStatus)
		}
		if resp.Success {
			t.Error("Success = true, want false")
		}
		if resp.Accepted != 1 || resp.Rejected != 2 {
			t.Errorf("accepted = %d rejected = %d", resp.Accepted, resp.Rejected)
		}
		if len(resp.Errors) != 2 || !strings.HasPrefix(resp.Errors[0], "observation[1]") {
			t.Errorf("errors = %v", resp.Errors)
		}
	})

	t.Run("queue full", func(t *testing.T) {
		eval := &fakeEvaluator{enqueue: func(*engine.Observation) error { return engine.ErrQueueFull }}
		h := NewHandler(eval)

		rec, resp := post(t, h, "/v1/observations?async=true",
			`{"observations": [{"domain": "wifi", "fields": {"ssid": "x"}}]}`)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		if resp.Rejected != 1 {
			t.Errorf("Rejected = %d, want 1", resp.Rejected)
		}
	})

	t.Run("all invalid", func(t *testing.T) {
		h := NewHandler(&fakeEvaluator{})

		rec, _ := post(t, h, "/v1/observations", `{"observations": [{"domain": "sonar", "fields": {"a": 1}}]}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("request errors", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			want int
		}{
			{"invalid json", `{not json`, http.StatusBadRequest},
			{"empty batch", `{"observations": []}`, http.StatusBadRequest},
			{"batch too large", `{"observations": [{"domain":"wifi","fields":{"a":1}},{"domain":"wifi","fields":{"a":1}},{"domain":"wifi","fields":{"a":1}}]}`, http.StatusBadRequest},
			{"payload too large", `{"observations": [{"domain":"wifi","fields":{"ssid":"` + strings.Repeat("x", 600) + `"}}]}`, http.StatusRequestEntityTooLarge},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := NewHandler(&fakeEvaluator{}).WithMaxBatch(2).WithMaxPayload(512)
				rec, _ := post(t, h, "/v1/observations", tt.body)
				if rec.Code != tt.want {
					t.Errorf("status = %d, want %d", rec.Code, tt.want)
				}
			})
		}
	})
}

func TestHandler_RealEngine(t *testing.T) {
	e, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	h := NewHandler(e)

	_, resp := post(t, h, "/v1/observations",
		`{"observations": [{"domain": "wifi", "fields": {"ssid": "Flock-58A2"}}]}`)

	found := false
	for _, a := range resp.Anomalies {
		if a.RuleID == "builtin-flock-ssid" {
			found = true
		}
	}
	if !found {
		t.Errorf("builtin-flock-ssid not in %+v", resp.Anomalies)
	}
}

func TestHandler_HealthCheck(t *testing.T) {
	h := NewHandler(&fakeEvaluator{})
	post(t, h, "/v1/observations", `{"observations": [{"domain": "wifi", "fields": {"ssid": "x"}}]}`)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	if body["observations_total"] != float64(1) || body["anomalies_total"] != float64(1) {
		t.Errorf("counters = %v", body)
	}
}

func TestWithMiddleware_Auth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeyHeader = "X-API-Key"
	cfg.Auth.APIKeys = []string{"secret-key-123"}

	mux := http.NewServeMux()
	NewHandler(&fakeEvaluator{}).Register(mux)
	handler := WithMiddleware(mux, cfg, nil)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"health exempt", http.MethodGet, "/health", "", http.StatusOK},
		{"missing key", http.MethodPost, "/v1/observations", "", http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "/v1/observations", "nope", http.StatusUnauthorized},
		{"valid key", http.MethodPost, "/v1/observations", "secret-key-123", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.method == http.MethodPost {
				body = strings.NewReader(`{"observations": [{"domain": "wifi", "fields": {"ssid": "x"}}]}`)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWithMiddleware_Recovery(t *testing.T) {
	cfg := config.DefaultConfig()
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	WithMiddleware(panicky, cfg, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestWithMiddleware_SecurityHeaders(t *testing.T) {
	mux := http.NewServeMux()
	NewHandler(&fakeEvaluator{}).Register(mux)
	handler := WithMiddleware(mux, config.DefaultConfig(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "no-referrer",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should only be sent over TLS")
	}
}

func TestHandler_ObservationBudget(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.ObservationsPerIP = 3
	budget := NewObservationLimiter(cfg)
	defer budget.Stop()

	eval := &fakeEvaluator{}
	h := NewHandler(eval).WithObservationBudget(budget, false)

	two := `{"observations": [
		{"domain": "wifi", "fields": {"ssid": "a"}},
		{"domain": "wifi", "fields": {"ssid": "b"}}
	]}`

	rec, _ := post(t, h, "/v1/observations", two)
	if rec.Code != http.StatusOK {
		t.Fatalf("first batch status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("remaining = %q, want 1", got)
	}

	rec, _ = post(t, h, "/v1/observations", two)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second batch status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if len(eval.submitted) != 2 {
		t.Errorf("submitted = %d, want only the first batch", len(eval.submitted))
	}

	rec, _ = post(t, h, "/v1/observations", `{"observations": [{"domain": "wifi", "fields": {"ssid": "c"}}]}`)
	if rec.Code != http.StatusOK {
		t.Errorf("batch within remaining budget status = %d", rec.Code)
	}
}

func TestPrepareObservation(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return fixed }

	tests := []struct {
		name    string
		obs     engine.Observation
		wantErr bool
	}{
		{"alias domain", engine.Observation{Domain: "wlan", Fields: map[string]any{"ssid": "x"}}, false},
		{"keeps id and time", engine.Observation{ID: "obs-1", Domain: "gnss", Fields: map[string]any{"avg_cn0": 30}, Timestamp: fixed.Add(-time.Hour)}, false},
		{"unknown domain", engine.Observation{Domain: "sonar", Fields: map[string]any{"x": 1}}, true},
		{"no fields", engine.Observation{Domain: "wifi"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := tt.obs
			err := prepareObservation(&obs, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("prepareObservation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !obs.Domain.Valid() {
				t.Errorf("domain %q not canonical", obs.Domain)
			}
			if obs.ID == "" || (tt.obs.ID != "" && obs.ID != tt.obs.ID) {
				t.Errorf("ID = %q", obs.ID)
			}
			if tt.obs.Timestamp.IsZero() && !obs.Timestamp.Equal(fixed) {
				t.Errorf("Timestamp = %v, want %v", obs.Timestamp, fixed)
			}
			if !tt.obs.Timestamp.IsZero() && !obs.Timestamp.Equal(tt.obs.Timestamp) {
				t.Errorf("Timestamp overwritten: %v", obs.Timestamp)
			}
		})
	}
}
