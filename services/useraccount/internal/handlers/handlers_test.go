package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/zakkycrypt01/voile/libs/auth"
	"github.com/zakkycrypt01/voile/protocol/commit"
	"github.com/zakkycrypt01/voile/protocol/faucet"
	"github.com/zakkycrypt01/voile/protocol/ledgerstore"
	"github.com/zakkycrypt01/voile/protocol/pricing"
	"github.com/zakkycrypt01/voile/services/useraccount/internal/rate"
	"github.com/zakkycrypt01/voile/services/useraccount/internal/service"
	"github.com/zakkycrypt01/voile/services/useraccount/storage"
)

var testSecret = []byte("test-secret")

type published struct {
	Topic string
	Key   string
	Value any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Topic: topic, Key: key, Value: value})
	return 0, 0, nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Topic
	}
	return out
}

type fakeDealIndex struct {
	mu   sync.Mutex
	recs map[string]storage.DealRecord
}

func newFakeDealIndex() *fakeDealIndex {
	return &fakeDealIndex{recs: map[string]storage.DealRecord{}}
}

func dealKey(accountID string, requestID uint64) string {
	return fmt.Sprintf("%s/%d", accountID, requestID)
}

func (f *fakeDealIndex) InsertDeal(_ context.Context, rec storage.DealRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dealKey(rec.AccountID, rec.RequestID)
	if _, ok := f.recs[key]; !ok {
		f.recs[key] = rec
	}
	return nil
}

func (f *fakeDealIndex) GetDealByRequest(_ context.Context, accountID string, requestID uint64) (storage.DealRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[dealKey(accountID, requestID)]
	if !ok {
		return storage.DealRecord{}, storage.ErrDealNotFound
	}
	return rec, nil
}

type testEnv struct {
	router    *gin.Engine
	svc       *service.Service
	publisher *fakePublisher
	deals     *fakeDealIndex
	clock     *time.Time
}

func newTestEnv(t *testing.T, limiter rate.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	calc, err := pricing.NewCalculator(pricing.DefaultParams())
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	publisher := &fakePublisher{}
	deals := newFakeDealIndex()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	stores := ledgerstore.NewMemoryFactory()
	svc := service.New(
		stores,
		deals,
		commit.NewBlake3Hasher(),
		calc,
		faucet.New(stores.Namespace("faucet"), 0),
		publisher,
		service.Topics{
			UnlockRequested:       "unlock.requested",
			UnlockCancelled:       "unlock.cancelled",
			SettlementsAuthorized: "settlements.authorized",
		},
		nil,
		nil,
	).WithClock(func() time.Time { return *clock })

	router := gin.New()
	New(svc, limiter, nil).Register(router, testSecret)
	return &testEnv{router: router, svc: svc, publisher: publisher, deals: deals, clock: clock}
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, subject string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, subject))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, w.Body.String())
	}
	return out
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/balance", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestDepositAndBalance(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "3000"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("deposit status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/balance", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}
	resp := decode[balanceResponse](t, w)
	if resp.Balance != "3000" {
		t.Fatalf("balance = %s, want 3000", resp.Balance)
	}

	// Another account sees its own empty balance.
	w = env.do(t, http.MethodGet, "/balance", "bob", nil)
	resp = decode[balanceResponse](t, w)
	if resp.Balance != "0" {
		t.Fatalf("bob balance = %s, want 0", resp.Balance)
	}
}

func TestDepositValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, amount := range []string{"", "abc", "-5", "0", "0.0000001"} {
		w := env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: amount})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("amount %q status = %d, want 400", amount, w.Code)
		}
	}
}

func TestCreateUnlockRequestFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "3000"})

	w := env.do(t, http.MethodPost, "/unlock-requests", "alice", createRequestBody{Amount: "1000.50"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	created := decode[createRequestResponse](t, w)
	if created.RequestID != 1 || len(created.Commitment) != 64 || len(created.Secret) != 64 {
		t.Fatalf("create response = %+v", created)
	}
	wantCooldown := uint64(env.clock.Unix()) + pricing.DefaultParams().CooldownSeconds
	if created.CooldownEnd != wantCooldown {
		t.Fatalf("cooldown end = %d, want %d", created.CooldownEnd, wantCooldown)
	}

	// Balance reflects the locked amount.
	w = env.do(t, http.MethodGet, "/balance", "alice", nil)
	if resp := decode[balanceResponse](t, w); resp.Balance != "1999.5" {
		t.Fatalf("balance = %s, want 1999.5", resp.Balance)
	}

	// The request was announced.
	topics := env.publisher.topics()
	if len(topics) != 1 || topics[0] != "unlock.requested" {
		t.Fatalf("published topics = %v", topics)
	}

	w = env.do(t, http.MethodGet, "/unlock-requests/1", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	req := decode[requestResponse](t, w)
	if req.Amount != "1000.5" || req.Matched || req.Settled {
		t.Fatalf("request = %+v", req)
	}
}

func TestCreateUnlockRequestInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "100"})

	w := env.do(t, http.MethodPost, "/unlock-requests", "alice", createRequestBody{Amount: "101"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if resp := decode[errorResponse](t, w); resp.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("code = %s", resp.Code)
	}
}

func TestCancelRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "1000"})
	env.do(t, http.MethodPost, "/unlock-requests", "alice", createRequestBody{Amount: "600"})

	w := env.do(t, http.MethodDelete, "/unlock-requests/1", "alice", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/balance", "alice", nil)
	if resp := decode[balanceResponse](t, w); resp.Balance != "1000" {
		t.Fatalf("balance = %s, want 1000", resp.Balance)
	}

	w = env.do(t, http.MethodDelete, "/unlock-requests/1", "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second cancel status = %d, want 404", w.Code)
	}
}

func TestSettlementFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "3000"})

	w := env.do(t, http.MethodPost, "/unlock-requests", "alice", createRequestBody{Amount: "3000"})
	created := decode[createRequestResponse](t, w)

	// Pool side accepts the deal; the consumer applies it.
	var lpCommitment commit.Word
	lpCommitment[0] = 7
	dealID := uuid.New()
	err := env.svc.ApplyAcceptedDeal(context.Background(), service.AcceptedDeal{
		DealID:       dealID,
		AccountID:    "alice",
		RequestID:    created.RequestID,
		Advance:      2_850_000_000,
		LPCommitment: lpCommitment,
	})
	if err != nil {
		t.Fatalf("ApplyAcceptedDeal: %v", err)
	}

	// Cancelling a matched request is refused.
	w = env.do(t, http.MethodDelete, "/unlock-requests/1", "alice", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("cancel status = %d, want 409", w.Code)
	}

	// Too early.
	w = env.do(t, http.MethodPost, "/unlock-requests/1/settlement", "alice", settleRequestBody{Secret: created.Secret})
	if w.Code != http.StatusConflict {
		t.Fatalf("early settle status = %d, body %s", w.Code, w.Body.String())
	}
	if resp := decode[errorResponse](t, w); resp.Code != "COOLDOWN_ACTIVE" {
		t.Fatalf("code = %s", resp.Code)
	}

	// Advance past the cooldown.
	*env.clock = env.clock.Add(15 * 24 * time.Hour)

	// Wrong secret.
	var wrong commit.Word
	wrong[0] = 0xFF
	w = env.do(t, http.MethodPost, "/unlock-requests/1/settlement", "alice", settleRequestBody{Secret: wrong.String()})
	if resp := decode[errorResponse](t, w); w.Code != http.StatusConflict || resp.Code != "COMMITMENT_MISMATCH" {
		t.Fatalf("wrong secret status = %d code = %s", w.Code, resp.Code)
	}

	w = env.do(t, http.MethodPost, "/unlock-requests/1/settlement", "alice", settleRequestBody{Secret: created.Secret})
	if w.Code != http.StatusOK {
		t.Fatalf("settle status = %d, body %s", w.Code, w.Body.String())
	}
	settled := decode[settleResponse](t, w)
	if settled.DealID != dealID.String() || settled.Amount != "3000" || len(settled.NoteHash) != 64 {
		t.Fatalf("settle response = %+v", settled)
	}

	// The pool was notified.
	topics := env.publisher.topics()
	last := topics[len(topics)-1]
	if last != "settlements.authorized" {
		t.Fatalf("last topic = %s", last)
	}

	// Settles once.
	w = env.do(t, http.MethodPost, "/unlock-requests/1/settlement", "alice", settleRequestBody{Secret: created.Secret})
	if resp := decode[errorResponse](t, w); w.Code != http.StatusConflict || resp.Code != "ALREADY_SETTLED" {
		t.Fatalf("second settle status = %d code = %s", w.Code, resp.Code)
	}
}

func TestSettleUnmatchedRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "1000"})
	w := env.do(t, http.MethodPost, "/unlock-requests", "alice", createRequestBody{Amount: "500"})
	created := decode[createRequestResponse](t, w)

	w = env.do(t, http.MethodPost, "/unlock-requests/1/settlement", "alice", settleRequestBody{Secret: created.Secret})
	if resp := decode[errorResponse](t, w); w.Code != http.StatusConflict || resp.Code != "NOT_MATCHED" {
		t.Fatalf("status = %d code = %s", w.Code, resp.Code)
	}
}

func TestRateLimiting(t *testing.T) {
	env := newTestEnv(t, rate.NewMemory(2, time.Minute))

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "1"})
		if w.Code != http.StatusNoContent {
			t.Fatalf("call %d status = %d", i+1, w.Code)
		}
	}
	w := env.do(t, http.MethodPost, "/deposits", "alice", depositRequest{Amount: "1"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	// Reads are not limited.
	if w := env.do(t, http.MethodGet, "/balance", "alice", nil); w.Code != http.StatusOK {
		t.Fatalf("balance status = %d", w.Code)
	}
}
