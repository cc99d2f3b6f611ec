package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// Shared hand-written fakes for the use case tests.

type fakeCache struct {
	mu sync.Mutex

	states   map[string]domain.TaskState
	results  map[string]json.RawMessage
	analyses map[string]json.RawMessage
	reports  map[string]json.RawMessage
	links    map[string]string

	stateWrites []domain.TaskState

	resultTTLs   map[string]time.Duration
	analysisTTLs map[string]time.Duration
	reportTTLs   map[string]time.Duration

	stateErr error
	readErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		states:   make(map[string]domain.TaskState),
		results:  make(map[string]json.RawMessage),
		analyses: make(map[string]json.RawMessage),
		reports:  make(map[string]json.RawMessage),
		links:    make(map[string]string),

		resultTTLs:   make(map[string]time.Duration),
		analysisTTLs: make(map[string]time.Duration),
		reportTTLs:   make(map[string]time.Duration),
	}
}

func (f *fakeCache) TaskState(_ context.Context, taskID string) (*domain.TaskState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	state, ok := f.states[taskID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (f *fakeCache) SetTaskState(_ context.Context, taskID string, state domain.TaskState, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return f.stateErr
	}
	f.states[taskID] = state
	f.stateWrites = append(f.stateWrites, state)
	return nil
}

func (f *fakeCache) TaskResult(_ context.Context, taskID string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.results[taskID], nil
}

func (f *fakeCache) SetTaskResult(_ context.Context, taskID string, result json.RawMessage, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[taskID] = result
	f.resultTTLs[taskID] = ttl
	return nil
}

func (f *fakeCache) LinkTaskCommitment(_ context.Context, taskID, commitment string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[taskID] = commitment
	return nil
}

func (f *fakeCache) TaskByCommitment(_ context.Context, commitment string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for task, c := range f.links {
		if c == commitment {
			return task, nil
		}
	}
	return "", nil
}

func (f *fakeCache) CommitmentByTask(_ context.Context, taskID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[taskID], nil
}

func (f *fakeCache) CommitmentAnalysis(_ context.Context, commitment string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.analyses[commitment], nil
}

func (f *fakeCache) SetCommitmentAnalysis(_ context.Context, commitment string, analysis json.RawMessage, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses[commitment] = analysis
	f.analysisTTLs[commitment] = ttl
	return nil
}

func (f *fakeCache) StrategyReport(_ context.Context, commitment, strategyType string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports[commitment+":"+strategyType], nil
}

func (f *fakeCache) SetStrategyReport(_ context.Context, commitment, strategyType string, report json.RawMessage, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[commitment+":"+strategyType] = report
	f.reportTTLs[commitment+":"+strategyType] = ttl
	return nil
}

func (f *fakeCache) Ping(context.Context) error { return nil }

// progressSequence returns the progress values written so far.
func (f *fakeCache) progressSequence() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.stateWrites))
	for _, s := range f.stateWrites {
		out = append(out, s.Progress)
	}
	return out
}

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) VerifyOwnership(string, string, string, int64) error {
	f.calls++
	return f.err
}

type fakePublisher struct {
	mu sync.Mutex

	riskRequests     []domain.RiskTaskMessage
	strategyRequests []domain.StrategyTaskMessage
	riskResults      []domain.TaskResultMessage
	strategyResults  []domain.TaskResultMessage

	requestErr error
	resultErr  error
}

func (f *fakePublisher) PublishRiskRequest(_ context.Context, msg domain.RiskTaskMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return f.requestErr
	}
	f.riskRequests = append(f.riskRequests, msg)
	return nil
}

func (f *fakePublisher) PublishStrategyRequest(_ context.Context, msg domain.StrategyTaskMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requestErr != nil {
		return f.requestErr
	}
	f.strategyRequests = append(f.strategyRequests, msg)
	return nil
}

func (f *fakePublisher) PublishRiskResult(_ context.Context, msg domain.TaskResultMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultErr != nil {
		return f.resultErr
	}
	f.riskResults = append(f.riskResults, msg)
	return nil
}

func (f *fakePublisher) PublishStrategyResult(_ context.Context, msg domain.TaskResultMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultErr != nil {
		return f.resultErr
	}
	f.strategyResults = append(f.strategyResults, msg)
	return nil
}

type fakeBus struct {
	mu      sync.Mutex
	updates []domain.StatusUpdate
	err     error
}

func (f *fakeBus) PublishStatus(_ context.Context, update domain.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, update)
	return nil
}

type fakeIndexer struct {
	summary *domain.ActivitySummary
	head    uint64
	err     error

	seenWallets []string
}

func (f *fakeIndexer) WalletActivity(_ context.Context, wallet string) (*domain.ActivitySummary, error) {
	f.seenWallets = append(f.seenWallets, wallet)
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func (f *fakeIndexer) CurrentBlock(context.Context) (uint64, error) {
	return f.head, nil
}

type fakeScorer struct {
	assessment domain.RiskAssessment
}

func (f *fakeScorer) Score(domain.ActivitySummary) domain.RiskAssessment {
	return f.assessment
}

type fakeIssuer struct {
	passport *domain.Passport
	err      error
}

func (f *fakeIssuer) IssuePassport(_ context.Context, commitment string, riskScore int) (*domain.Passport, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := *f.passport
	p.Commitment = commitment
	p.RiskScore = riskScore
	return &p, nil
}

type fakeAnalyzer struct {
	checks  []domain.ValidationCheck
	profile domain.StrategyProfile
	recs    []string
	back    domain.BacktestSummary
}

func (f *fakeAnalyzer) Validate(domain.StrategyParameters, domain.ActivitySummary) ([]domain.ValidationCheck, domain.StrategyProfile, []string) {
	return f.checks, f.profile, f.recs
}

func (f *fakeAnalyzer) Backtest(_ domain.StrategyParameters, _ domain.ActivitySummary, days int) domain.BacktestSummary {
	out := f.back
	out.Days = days
	return out
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []domain.ModelInference
}

func (f *fakeRecorder) RecordInference(_ context.Context, rec domain.ModelInference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

// Well-formed proof fields for requests that must pass shape validation.
var (
	testCommitment = "0x" + strings.Repeat("ab", 32)
	testWallet     = "0x" + strings.Repeat("cd", 20)
	testSignature  = "0x" + strings.Repeat("ef", 65)
)
