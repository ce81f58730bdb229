package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donorledger-backend/internal/donations"
	"github.com/angelmondragon/donorledger-backend/pkg/config"
	"github.com/angelmondragon/donorledger-backend/pkg/db/models"
	"github.com/angelmondragon/donorledger-backend/pkg/enums"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	"github.com/angelmondragon/donorledger-backend/pkg/pagination"
	pkgredis "github.com/angelmondragon/donorledger-backend/pkg/redis"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryRedis struct {
	mu      sync.Mutex
	data    map[string]string
	counts  map[string]int64
	pingErr error
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "dl:idempotency:" + scope + ":" + id
}

func (m *memoryRedis) Ping(context.Context) error {
	return m.pingErr
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

type stubDonations struct {
	mu        sync.Mutex
	initiated []donations.InitiateInput
	byID      map[uuid.UUID]*models.Donation
}

func newStubDonations() *stubDonations {
	return &stubDonations{byID: map[uuid.UUID]*models.Donation{}}
}

func (s *stubDonations) Initiate(_ context.Context, input donations.InitiateInput) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiated = append(s.initiated, input)
	hash := strings.Repeat("A", 64)
	now := time.Now().UTC()
	d := &models.Donation{
		ID:          uuid.New(),
		Amount:      input.Amount,
		DonorID:     input.DonorID,
		NPOID:       input.NPOID,
		IsAnonymous: input.IsAnonymous,
		TxHash:      &hash,
		Status:      enums.DonationStatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
		CompletedAt: &now,
	}
	s.byID[d.ID] = d
	return d, nil
}

func (s *stubDonations) Get(_ context.Context, id uuid.UUID) (*models.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.byID[id]; ok {
		return d, nil
	}
	return nil, errors.New("missing")
}

func (s *stubDonations) List(context.Context, donations.ListFilters, pagination.Params) (*donations.DonationList, error) {
	return &donations.DonationList{}, nil
}

func (s *stubDonations) ListForUser(context.Context, uuid.UUID, donations.ListFilters, pagination.Params) (*donations.DonationList, error) {
	return &donations.DonationList{}, nil
}

func (s *stubDonations) Delete(context.Context, uuid.UUID) error {
	return nil
}

func (s *stubDonations) FinishEscrow(context.Context, donations.FinishEscrowInput) (*donations.EscrowFinishResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDonations) ReconcilePending(context.Context, int) (donations.ReconcileSummary, error) {
	return donations.ReconcileSummary{}, nil
}

func (s *stubDonations) initiatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.initiated)
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSAllowedOrigins: []string{"http://localhost:3000"}},
		Idempotency: config.IdempotencyConfig{
			DonationTTL: 168 * time.Hour,
			DefaultTTL:  24 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			DonationWindow:  time.Minute,
			DonationIPLimit: 2,
		},
	}
}

func newTestRouter(t *testing.T, redis *memoryRedis, svc *stubDonations) http.Handler {
	t.Helper()
	deps := Deps{
		Config:   testConfig(),
		Logger:   logger.Nop(),
		DB:       stubPinger{},
		Gatherer: prometheus.NewRegistry(),
	}
	if redis != nil {
		deps.Redis = redis
	}
	if svc != nil {
		deps.Donations = svc
	}
	return NewRouter(deps)
}

const donationBody = `{"npo_id":"6f1c1b0e-8a4e-4d7f-9a52-3c0f5f1e2b11","amount":"10.5"}`

func TestHealthEndpoints(t *testing.T) {
	redis := newMemoryRedis()
	router := newTestRouter(t, redis, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected live 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200, got %d", resp.Code)
	}

	redis.pingErr = errors.New("down")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected ready 503 with redis down, got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", resp.Code)
	}
}

func TestInitiateDonationRequiresIdempotencyKey(t *testing.T) {
	svc := newStubDonations()
	router := newTestRouter(t, newMemoryRedis(), svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/donations", strings.NewReader(donationBody))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", resp.Code)
	}
	if svc.initiatedCount() != 0 {
		t.Fatalf("service must not be called")
	}
}

func TestInitiateDonationRetryIsReplayed(t *testing.T) {
	svc := newStubDonations()
	router := newTestRouter(t, newMemoryRedis(), svc)

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/donations", strings.NewReader(donationBody))
		req.Header.Set("Idempotency-Key", "client-retry-1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201, got %d: %s", i, resp.Code, resp.Body.String())
		}
		bodies = append(bodies, resp.Body.String())
	}

	if svc.initiatedCount() != 1 {
		t.Fatalf("expected a single ledger submission, got %d", svc.initiatedCount())
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("replayed body differs")
	}

	var payload struct {
		Data struct {
			Amount string `json:"amount"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(bodies[0]), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Status != "completed" || !decimal.RequireFromString(payload.Data.Amount).Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("unexpected payload %+v", payload.Data)
	}
}

func TestInitiateDonationRateLimited(t *testing.T) {
	svc := newStubDonations()
	router := newTestRouter(t, newMemoryRedis(), svc)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/donations", strings.NewReader(donationBody))
		req.Header.Set("Idempotency-Key", fmt.Sprintf("key-%d", i))
		req.RemoteAddr = "9.9.9.9:1000"
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}

	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated {
		t.Fatalf("expected first two to pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third to be limited, got %v", codes)
	}
}

func TestGetDonationRejectsBadID(t *testing.T) {
	router := newTestRouter(t, newMemoryRedis(), newStubDonations())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/donations/not-a-uuid", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestUnwiredServiceReturnsInternal(t *testing.T) {
	router := newTestRouter(t, newMemoryRedis(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/npos", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unwired service, got %d", resp.Code)
	}
}

func TestLedgerAccountTransactionsRequiresGateway(t *testing.T) {
	router := newTestRouter(t, newMemoryRedis(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/accounts/rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh/transactions", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t, nil, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/refunds", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
