package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
)

func validAnalysisRequest() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		Commitment:    testCommitment,
		WalletAddress: testWallet,
		Signature:     testSignature,
		Message:       "RiskScope Analysis: " + testWallet + " at 1700000000",
		Timestamp:     1_700_000_000,
	}
}

func TestSubmitRiskAnalysisQueuesTask(t *testing.T) {
	cache := newFakeCache()
	verifier := &fakeVerifier{}
	queue := &fakePublisher{}
	tracker := NewStatusTracker(cache, &fakeBus{}, time.Hour)
	uc := NewSubmitRiskAnalysisUseCase(verifier, cache, queue, tracker)

	receipt, err := uc.SubmitRiskAnalysis(context.Background(), validAnalysisRequest())
	if err != nil {
		t.Fatalf("SubmitRiskAnalysis() error = %v", err)
	}

	if receipt.Status != domain.TaskPending || receipt.Progress != 0 {
		t.Fatalf("receipt = %+v, want pending/0", receipt)
	}
	if receipt.TaskID == "" || receipt.TaskID == domain.CachedTaskID {
		t.Fatalf("TaskID = %q", receipt.TaskID)
	}
	if len(queue.riskRequests) != 1 {
		t.Fatalf("published %d requests, want 1", len(queue.riskRequests))
	}
	msg := queue.riskRequests[0]
	if msg.CorrelationID != msg.TaskID {
		t.Errorf("correlation id %q != task id %q", msg.CorrelationID, msg.TaskID)
	}
	if msg.Commitment != testCommitment {
		t.Errorf("commitment = %q", msg.Commitment)
	}
	if cache.links[receipt.TaskID] != testCommitment {
		t.Error("task<->commitment link missing")
	}
	if verifier.calls != 1 {
		t.Errorf("verifier calls = %d", verifier.calls)
	}
}

func TestSubmitRiskAnalysisCacheHitSkipsQueue(t *testing.T) {
	cache := newFakeCache()
	cached := json.RawMessage(`{"risk_score":1200}`)
	cache.analyses[testCommitment] = cached
	queue := &fakePublisher{}
	uc := NewSubmitRiskAnalysisUseCase(&fakeVerifier{}, cache, queue, NewStatusTracker(cache, nil, time.Hour))

	for i := 0; i < 2; i++ {
		receipt, err := uc.SubmitRiskAnalysis(context.Background(), validAnalysisRequest())
		if err != nil {
			t.Fatalf("attempt %d: error = %v", i, err)
		}
		if receipt.TaskID != domain.CachedTaskID || receipt.Status != domain.TaskCompleted || receipt.Progress != 100 {
			t.Fatalf("attempt %d: receipt = %+v", i, receipt)
		}
		if string(receipt.Result) != string(cached) {
			t.Fatalf("attempt %d: result = %s", i, receipt.Result)
		}
	}
	if len(queue.riskRequests) != 0 {
		t.Fatalf("cache hit published %d requests", len(queue.riskRequests))
	}
}

func TestSubmitRiskAnalysisForceRefreshBypassesCache(t *testing.T) {
	cache := newFakeCache()
	cache.analyses[testCommitment] = json.RawMessage(`{"risk_score":1200}`)
	queue := &fakePublisher{}
	uc := NewSubmitRiskAnalysisUseCase(&fakeVerifier{}, cache, queue, NewStatusTracker(cache, nil, time.Hour))

	req := validAnalysisRequest()
	req.ForceRefresh = true
	receipt, err := uc.SubmitRiskAnalysis(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitRiskAnalysis() error = %v", err)
	}
	if receipt.TaskID == domain.CachedTaskID {
		t.Fatal("force refresh must not serve the cached result")
	}
	if len(queue.riskRequests) != 1 {
		t.Fatalf("published %d requests, want 1", len(queue.riskRequests))
	}
}

func TestSubmitRiskAnalysisRejectsBadShape(t *testing.T) {
	uc := NewSubmitRiskAnalysisUseCase(&fakeVerifier{}, newFakeCache(), &fakePublisher{}, NewStatusTracker(newFakeCache(), nil, time.Hour))

	cases := []func(*domain.AnalysisRequest){
		func(r *domain.AnalysisRequest) { r.Commitment = "0x1234" },
		func(r *domain.AnalysisRequest) { r.WalletAddress = "not-hex" },
		func(r *domain.AnalysisRequest) { r.Signature = testCommitment },
		// Unprefixed hex is a shape defect, not an ownership failure.
		func(r *domain.AnalysisRequest) { r.Signature = strings.TrimPrefix(testSignature, "0x") },
		func(r *domain.AnalysisRequest) { r.Commitment = strings.TrimPrefix(testCommitment, "0x") },
	}
	for i, mutate := range cases {
		req := validAnalysisRequest()
		mutate(&req)
		_, err := uc.SubmitRiskAnalysis(context.Background(), req)
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Errorf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestSubmitRiskAnalysisUnauthorizedStopsBeforeCache(t *testing.T) {
	cache := newFakeCache()
	cache.analyses[testCommitment] = json.RawMessage(`{"cached":true}`)
	verifier := &fakeVerifier{err: domain.WrapError(domain.ErrUnauthorized, "verify ownership", errors.New("signer mismatch"))}
	uc := NewSubmitRiskAnalysisUseCase(verifier, cache, &fakePublisher{}, NewStatusTracker(cache, nil, time.Hour))

	_, err := uc.SubmitRiskAnalysis(context.Background(), validAnalysisRequest())
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestSubmitRiskAnalysisSurfacesPublishFailure(t *testing.T) {
	cache := newFakeCache()
	queue := &fakePublisher{requestErr: domain.WrapError(domain.ErrUpstream, "kafka publish", errors.New("broker down"))}
	uc := NewSubmitRiskAnalysisUseCase(&fakeVerifier{}, cache, queue, NewStatusTracker(cache, nil, time.Hour))

	_, err := uc.SubmitRiskAnalysis(context.Background(), validAnalysisRequest())
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if len(cache.stateWrites) != 0 {
		t.Fatal("no status should be recorded when the publish fails")
	}
}

func TestSubmitStrategyValidationQueuesTask(t *testing.T) {
	cache := newFakeCache()
	queue := &fakePublisher{}
	uc := NewSubmitStrategyValidationUseCase(&fakeVerifier{}, cache, queue, NewStatusTracker(cache, nil, time.Hour))

	receipt, err := uc.SubmitStrategyValidation(context.Background(), domain.StrategyRequest{
		Commitment:    testCommitment,
		WalletAddress: testWallet,
		Signature:     testSignature,
		Message:       "RiskScope Analysis: " + testWallet + " at 1700000000",
		Timestamp:     1_700_000_000,
		Parameters:    domain.StrategyParameters{StrategyType: "swing", TakeProfit: 10, StopLoss: 5, PositionSize: 10},
	})
	if err != nil {
		t.Fatalf("SubmitStrategyValidation() error = %v", err)
	}
	if receipt.Status != domain.TaskPending {
		t.Fatalf("receipt = %+v", receipt)
	}
	if len(queue.strategyRequests) != 1 {
		t.Fatalf("published %d requests", len(queue.strategyRequests))
	}
	if queue.strategyRequests[0].BacktestDays != 30 {
		t.Errorf("BacktestDays = %d, want default 30", queue.strategyRequests[0].BacktestDays)
	}
}

func TestSubmitStrategyValidationRequiresStrategyType(t *testing.T) {
	cache := newFakeCache()
	uc := NewSubmitStrategyValidationUseCase(&fakeVerifier{}, cache, &fakePublisher{}, NewStatusTracker(cache, nil, time.Hour))

	_, err := uc.SubmitStrategyValidation(context.Background(), domain.StrategyRequest{
		Commitment:    testCommitment,
		WalletAddress: testWallet,
		Signature:     testSignature,
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
