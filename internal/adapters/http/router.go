package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/core/ports"
	"github.com/veilproof/riskscope/internal/observability/metrics"
)

const serviceName = "api"

// ReadinessCheck probes one dependency. Nil error means up.
type ReadinessCheck func(ctx context.Context) error

type Router struct {
	analysis ports.AnalysisSubmitter
	strategy ports.StrategySubmitter
	status   ports.TaskStatusReader

	readiness map[string]ReadinessCheck
	metrics   *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
}

func NewRouter(
	analysis ports.AnalysisSubmitter,
	strategy ports.StrategySubmitter,
	status ports.TaskStatusReader,
	readiness map[string]ReadinessCheck,
	m *metrics.HTTPServerMetrics,
	rateLimitRPS float64,
	rateLimitBurst int,
) *Router {
	return &Router{
		analysis:       analysis,
		strategy:       strategy,
		status:         status,
		readiness:      readiness,
		metrics:        m,
		rateLimitRPS:   rateLimitRPS,
		rateLimitBurst: rateLimitBurst,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/readyz", rt.readyz)
	mux.HandleFunc("/v1/risk/analyze", rt.submitAnalysis)
	mux.HandleFunc("/v1/risk/status/", rt.taskStatus)
	mux.HandleFunc("/v1/risk/analysis/", rt.analysisByCommitment)
	mux.HandleFunc("/v1/strategy/validate", rt.submitStrategy)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rt.metrics)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz distinguishes healthy (all dependencies up) from degraded. A
// degraded service answers 503 with the per-dependency breakdown.
func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(rt.readiness))
	healthy := true
	for name, check := range rt.readiness {
		if err := check(ctx); err != nil {
			deps[name] = "down"
			healthy = false
			continue
		}
		deps[name] = "up"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "dependencies": deps})
}

func (rt *Router) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	receipt, err := rt.analysis.SubmitRiskAnalysis(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSubmission(serviceName, "risk", receipt.TaskID == domain.CachedTaskID)
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (rt *Router) submitStrategy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	receipt, err := rt.strategy.SubmitStrategyValidation(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSubmission(serviceName, "strategy", receipt.TaskID == domain.CachedTaskID)
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (rt *Router) taskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/v1/risk/status/")
	if taskID == "" || strings.Contains(taskID, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id is required"})
		return
	}

	receipt, err := rt.status.TaskStatus(r.Context(), taskID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// analysisByCommitment serves the cached analysis, or the in-flight task's
// state when the commitment has a task but no result yet.
func (rt *Router) analysisByCommitment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	commitment := strings.TrimPrefix(r.URL.Path, "/v1/risk/analysis/")
	if commitment == "" || strings.Contains(commitment, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "commitment is required"})
		return
	}

	receipt, err := rt.status.AnalysisByCommitment(r.Context(), commitment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
