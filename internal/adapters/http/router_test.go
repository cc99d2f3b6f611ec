package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/observability/metrics"
)

type fakeSubmitter struct {
	receipt *domain.TaskReceipt
	err     error
}

func (f *fakeSubmitter) SubmitRiskAnalysis(context.Context, domain.AnalysisRequest) (*domain.TaskReceipt, error) {
	return f.receipt, f.err
}

func (f *fakeSubmitter) SubmitStrategyValidation(context.Context, domain.StrategyRequest) (*domain.TaskReceipt, error) {
	return f.receipt, f.err
}

type fakeStatusReader struct {
	receipt       *domain.TaskReceipt
	err           error
	gotID         string
	gotCommitment string
}

func (f *fakeStatusReader) TaskStatus(_ context.Context, taskID string) (*domain.TaskReceipt, error) {
	f.gotID = taskID
	return f.receipt, f.err
}

func (f *fakeStatusReader) AnalysisByCommitment(_ context.Context, commitment string) (*domain.TaskReceipt, error) {
	f.gotCommitment = commitment
	return f.receipt, f.err
}

func newTestRouter(sub *fakeSubmitter, status *fakeStatusReader, readiness map[string]ReadinessCheck) http.Handler {
	if sub == nil {
		sub = &fakeSubmitter{}
	}
	if status == nil {
		status = &fakeStatusReader{}
	}
	return NewRouter(sub, sub, status, readiness, metrics.NewHTTPServerMetrics("api-test"), 0, 0).Handler()
}

func TestSubmitAnalysisAccepted(t *testing.T) {
	sub := &fakeSubmitter{receipt: &domain.TaskReceipt{
		TaskID:   "t-1",
		Status:   domain.TaskPending,
		Progress: 0,
		Message:  "analysis queued",
	}}
	handler := newTestRouter(sub, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/risk/analyze", strings.NewReader(`{"commitment":"0x1"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", res.Code)
	}
	var receipt domain.TaskReceipt
	if err := json.NewDecoder(res.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if receipt.TaskID != "t-1" || receipt.Status != domain.TaskPending {
		t.Fatalf("receipt = %+v", receipt)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestSubmitAnalysisErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{domain.WrapError(domain.ErrUnauthorized, "verify ownership", errors.New("signature mismatch")), http.StatusUnauthorized},
		{domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("bad commitment")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrUpstream, "kafka publish", errors.New("broker down")), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		handler := newTestRouter(&fakeSubmitter{err: tc.err}, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/v1/risk/analyze", strings.NewReader(`{}`))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)

		if res.Code != tc.wantStatus {
			t.Errorf("err %v: status = %d, want %d", tc.err, res.Code, tc.wantStatus)
		}
		if tc.wantStatus == http.StatusInternalServerError && strings.Contains(res.Body.String(), "broker down") {
			t.Errorf("internal detail leaked to client: %s", res.Body.String())
		}
	}
}

func TestSubmitAnalysisRejectsMalformedJSON(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/risk/analyze", strings.NewReader("{"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestSubmitAnalysisMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/risk/analyze", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", res.Code)
	}
}

func TestTaskStatusRoutes(t *testing.T) {
	status := &fakeStatusReader{receipt: &domain.TaskReceipt{TaskID: "t-9", Status: domain.TaskProcessing, Progress: 40}}
	handler := newTestRouter(nil, status, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/risk/status/t-9", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if status.gotID != "t-9" {
		t.Fatalf("task id passed = %q", status.gotID)
	}
}

func TestTaskStatusUnknownTaskIs404(t *testing.T) {
	status := &fakeStatusReader{err: domain.WrapError(domain.ErrTaskNotFound, "task status", errors.New("expired or never existed"))}
	handler := newTestRouter(nil, status, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/risk/status/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestAnalysisByCommitmentRoute(t *testing.T) {
	commitment := "0x" + strings.Repeat("ab", 32)
	status := &fakeStatusReader{receipt: &domain.TaskReceipt{
		TaskID:   domain.CachedTaskID,
		Status:   domain.TaskCompleted,
		Progress: 100,
		Result:   json.RawMessage(`{"risk_score":120}`),
	}}
	handler := newTestRouter(nil, status, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/risk/analysis/"+commitment, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if status.gotCommitment != commitment {
		t.Fatalf("commitment passed = %q", status.gotCommitment)
	}
	var receipt domain.TaskReceipt
	if err := json.NewDecoder(res.Body).Decode(&receipt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if receipt.TaskID != domain.CachedTaskID || string(receipt.Result) != `{"risk_score":120}` {
		t.Fatalf("receipt = %+v", receipt)
	}
}

func TestAnalysisByCommitmentUnknownIs404(t *testing.T) {
	status := &fakeStatusReader{err: domain.WrapError(domain.ErrTaskNotFound, "analysis lookup", errors.New("nothing for this commitment"))}
	handler := newTestRouter(nil, status, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/risk/analysis/0x"+strings.Repeat("cd", 32), nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestAnalysisByCommitmentRequiresCommitment(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/risk/analysis/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestTaskStatusRequiresID(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/risk/status/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestReadyzDistinguishesDegradedFromHealthy(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	handler := newTestRouter(nil, nil, map[string]ReadinessCheck{"cache": up, "queue": up})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("healthy readyz = %d, want 200", res.Code)
	}

	handler = newTestRouter(nil, nil, map[string]ReadinessCheck{"cache": up, "queue": down})
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded readyz = %d, want 503", res.Code)
	}

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || body.Dependencies["queue"] != "down" || body.Dependencies["cache"] != "up" {
		t.Fatalf("body = %+v", body)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	sub := &fakeSubmitter{receipt: &domain.TaskReceipt{TaskID: "t-1", Status: domain.TaskPending}}
	handler := NewRouter(sub, sub, &fakeStatusReader{}, nil, metrics.NewHTTPServerMetrics("api-rl-test"), 1, 1).Handler()

	req1 := httptest.NewRequest(http.MethodPost, "/v1/risk/analyze", strings.NewReader(`{}`))
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusAccepted {
		t.Fatalf("first request expected 202, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/v1/risk/analyze", strings.NewReader(`{}`))
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header for 429 response")
	}
}

func TestRateLimitExemptsProbes(t *testing.T) {
	handler := newTestRouterWithLimit(t, 1, 1)

	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("healthz attempt %d = %d, want 200", i, res.Code)
		}
	}
}

func newTestRouterWithLimit(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()
	sub := &fakeSubmitter{receipt: &domain.TaskReceipt{TaskID: "t-1"}}
	return NewRouter(sub, sub, &fakeStatusReader{}, nil, metrics.NewHTTPServerMetrics("api-probe-test"), rps, burst).Handler()
}
