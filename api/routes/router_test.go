package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corvuslabs/credit-oracle-backend/internal/chain"
	"github.com/corvuslabs/credit-oracle-backend/internal/ledger"
	"github.com/corvuslabs/credit-oracle-backend/internal/settlement"
	"github.com/corvuslabs/credit-oracle-backend/pkg/config"
	"github.com/corvuslabs/credit-oracle-backend/pkg/logger"
)

const testAddr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

type fakeOracle struct {
	credits *big.Int
	active  bool
}

func (f *fakeOracle) UserCredits(ctx context.Context, address string) (*big.Int, error) {
	return f.credits, nil
}

func (f *fakeOracle) UserSubscription(ctx context.Context, address string) (chain.Subscription, error) {
	return chain.Subscription{
		PlanID:         big.NewInt(1),
		UsedThisWindow: big.NewInt(0),
		WindowStart:    big.NewInt(0),
		Plan:           chain.Plan{Active: f.active},
	}, nil
}

func (f *fakeOracle) HasActiveSubscription(ctx context.Context, address string) (bool, error) {
	return f.active, nil
}

func (f *fakeOracle) EncodeAwardCredits(user string, amount *big.Int, reason string) (chain.Calldata, error) {
	return chain.Calldata{To: "0xcontract", Data: "0xdead"}, nil
}

func (f *fakeOracle) EncodeMemoryPointerUpdate(user, memoryHash string) (chain.Calldata, error) {
	return chain.Calldata{To: "0xcontract", Data: "0xbeef"}, nil
}

type fakeSettler struct {
	result settlement.Result
	err    error
	calls  int
}

func (f *fakeSettler) RunNow(ctx context.Context) (settlement.Result, error) {
	f.calls++
	return f.result, f.err
}

type testEnv struct {
	store   ledger.Store
	oracle  *fakeOracle
	settler *fakeSettler
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   ledger.NewMemoryStore(),
		oracle:  &fakeOracle{credits: big.NewInt(0)},
		settler: &fakeSettler{result: settlement.Result{Ok: true, Trigger: settlement.TriggerManual, Message: "settlement complete"}},
	}
	cfg := &config.Config{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	env.handler = NewRouter(cfg, logg, nil, env.store, env.oracle, env.settler)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, rec.Body.String())
	}
	return envelope.Error.Code
}

func TestRecordEngagementAccumulatesPending(t *testing.T) {
	env := newTestEnv(t)

	for i, want := range []int64{1, 2} {
		rec := env.do(t, http.MethodPost, "/engagement", map[string]any{
			"address": testAddr,
			"action":  "like",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("call %d: status = %d, body %s", i, rec.Code, rec.Body.String())
		}
		var resp struct {
			PendingCredits int64 `json:"pendingCredits"`
			Credits        int64 `json:"credits"`
		}
		decodeData(t, rec, &resp)
		if resp.Credits != 1 {
			t.Errorf("credits = %d, want 1", resp.Credits)
		}
		if resp.PendingCredits != want {
			t.Errorf("pendingCredits = %d, want %d", resp.PendingCredits, want)
		}
	}
}

func TestRecordEngagementRejectsMalformedAddress(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/engagement", map[string]any{
		"address": "not-an-address",
		"action":  "like",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "INVALID_ADDRESS" {
		t.Errorf("error code = %s, want INVALID_ADDRESS", code)
	}

	snapshot, err := env.store.AllPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snapshot.PendingEngagements) != 0 {
		t.Error("rejected request must not touch the ledger")
	}
}

func TestRecordEngagementLowercasesAction(t *testing.T) {
	env := newTestEnv(t)

	for _, action := range []string{"like", "Like"} {
		rec := env.do(t, http.MethodPost, "/engagement", map[string]any{
			"address": testAddr,
			"action":  action,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("action %q: status = %d, body %s", action, rec.Code, rec.Body.String())
		}
		var resp struct {
			Action string `json:"action"`
		}
		decodeData(t, rec, &resp)
		if resp.Action != "like" {
			t.Errorf("action %q echoed as %q, want like", action, resp.Action)
		}
	}

	// Both casings land as the same action so settlement builds one batch
	// group, not one per casing.
	pending, err := env.store.PendingEngagements(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending engagements = %d, want 2", len(pending))
	}
	for _, evt := range pending {
		if evt.Action != "like" {
			t.Errorf("stored action = %q, want like", evt.Action)
		}
	}
}

func TestRecordEngagementRejectsUnsupportedAction(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/engagement", map[string]any{
		"address": testAddr,
		"action":  "bookmark",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("error code = %s, want VALIDATION_ERROR", code)
	}
}

func TestUserPendingCreditsReadsLowercaseAddress(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/engagement", map[string]any{
		"address": testAddr,
		"action":  "comment",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed engagement failed: %s", rec.Body.String())
	}

	// Path params normalize the same way bodies do.
	lower := "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	read := env.do(t, http.MethodGet, "/users/"+lower+"/credits/pending", nil)
	if read.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", read.Code, read.Body.String())
	}
	var resp struct {
		Address        string `json:"address"`
		PendingCredits int64  `json:"pendingCredits"`
	}
	decodeData(t, read, &resp)
	if resp.Address != testAddr {
		t.Errorf("address = %s, want checksummed %s", resp.Address, testAddr)
	}
	if resp.PendingCredits != 2 {
		t.Errorf("pendingCredits = %d, want 2", resp.PendingCredits)
	}
}

func TestCalculateCreditsIsPure(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/credits/calculate", map[string]any{
		"reason":    "referral",
		"parameter": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Credits int64 `json:"credits"`
	}
	decodeData(t, rec, &resp)
	if resp.Credits != 50 {
		t.Errorf("credits = %d, want 50", resp.Credits)
	}

	pending, err := env.store.PendingCalculations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Error("pure estimate must not record anything")
	}
}

func TestInferenceEstimateDefaultsQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/inference/estimate", map[string]any{
		"mode": "full",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Quantity int64 `json:"quantity"`
		Credits  int64 `json:"credits"`
	}
	decodeData(t, rec, &resp)
	if resp.Quantity != 1 {
		t.Errorf("quantity = %d, want 1", resp.Quantity)
	}
	if resp.Credits != 6 {
		t.Errorf("credits = %d, want 6", resp.Credits)
	}

	rec = env.do(t, http.MethodPost, "/inference/estimate", map[string]any{
		"mode":     "tags",
		"quantity": 3,
	})
	decodeData(t, rec, &resp)
	if resp.Credits != 6 {
		t.Errorf("credits = %d, want 6", resp.Credits)
	}
}

func TestInferenceAuthorize(t *testing.T) {
	env := newTestEnv(t)

	authorize := func(t *testing.T) (int, struct {
		Authorized bool   `json:"authorized"`
		Method     string `json:"method"`
		Balance    string `json:"balance"`
		Credits    int64  `json:"credits"`
	}) {
		t.Helper()
		rec := env.do(t, http.MethodPost, "/inference/authorize", map[string]any{
			"address":  testAddr,
			"mode":     "price_accuracy",
			"quantity": 2,
		})
		var resp struct {
			Authorized bool   `json:"authorized"`
			Method     string `json:"method"`
			Balance    string `json:"balance"`
			Credits    int64  `json:"credits"`
		}
		decodeData(t, rec, &resp)
		return rec.Code, resp
	}

	// Empty wallet, no subscription: cost 8 is not covered.
	code, resp := authorize(t)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Credits != 8 {
		t.Errorf("credits = %d, want 8", resp.Credits)
	}
	if resp.Authorized {
		t.Error("empty wallet should not be authorized")
	}
	if resp.Balance != "0" {
		t.Errorf("balance = %s, want 0", resp.Balance)
	}

	// Balance at the cost threshold authorizes via credits.
	env.oracle.credits = big.NewInt(8)
	_, resp = authorize(t)
	if !resp.Authorized || resp.Method != "credits" {
		t.Errorf("expected authorization via credits, got %+v", resp)
	}

	// An active subscription authorizes regardless of balance.
	env.oracle.credits = big.NewInt(0)
	env.oracle.active = true
	_, resp = authorize(t)
	if !resp.Authorized || resp.Method != "subscription" {
		t.Errorf("expected authorization via subscription, got %+v", resp)
	}
}

func TestCalculateAndStoreAccumulates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/credits/calculate-and-store", map[string]any{
		"address":   testAddr,
		"reason":    "prompt_streak",
		"parameter": 3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Credits                int64 `json:"credits"`
		TotalCalculatedCredits int64 `json:"totalCalculatedCredits"`
	}
	decodeData(t, rec, &resp)
	if resp.Credits != 6 {
		t.Errorf("credits = %d, want 6", resp.Credits)
	}
	if resp.TotalCalculatedCredits != 6 {
		t.Errorf("total = %d, want 6", resp.TotalCalculatedCredits)
	}

	read := env.do(t, http.MethodGet, fmt.Sprintf("/users/%s/credits/calculated", testAddr), nil)
	if read.Code != http.StatusOK {
		t.Fatalf("status = %d", read.Code)
	}
	var total struct {
		TotalCalculatedCredits int64 `json:"totalCalculatedCredits"`
	}
	decodeData(t, read, &total)
	if total.TotalCalculatedCredits != 6 {
		t.Errorf("read total = %d, want 6", total.TotalCalculatedCredits)
	}
}

func TestSettleEndpointReturnsRunResult(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/credits/settle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if env.settler.calls != 1 {
		t.Errorf("settler calls = %d, want 1", env.settler.calls)
	}
	var resp struct {
		Ok      bool   `json:"ok"`
		Trigger string `json:"trigger"`
	}
	decodeData(t, rec, &resp)
	if !resp.Ok || resp.Trigger != settlement.TriggerManual {
		t.Errorf("unexpected result: %+v", resp)
	}
}

func TestInitialGrantEligibility(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/credits/initial-grant", map[string]any{"address": testAddr})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Eligible bool `json:"eligible"`
		Credits  int64
		Calldata *struct {
			To   string `json:"to"`
			Data string `json:"data"`
		} `json:"calldata"`
	}
	decodeData(t, rec, &resp)
	if !resp.Eligible {
		t.Fatal("fresh wallet should be eligible")
	}
	if resp.Calldata == nil || resp.Calldata.Data == "" {
		t.Error("eligible response must carry calldata")
	}

	// Holding credits makes the wallet ineligible.
	env.oracle.credits = big.NewInt(5)
	rec = env.do(t, http.MethodPost, "/credits/initial-grant", map[string]any{"address": testAddr})
	decodeData(t, rec, &resp)
	if resp.Eligible {
		t.Error("wallet with credits should be ineligible")
	}

	// An active subscription also disqualifies.
	env.oracle.credits = big.NewInt(0)
	env.oracle.active = true
	rec = env.do(t, http.MethodPost, "/credits/initial-grant", map[string]any{"address": testAddr})
	decodeData(t, rec, &resp)
	if resp.Eligible {
		t.Error("subscribed wallet should be ineligible")
	}
}

func TestChainRoutesWithoutOracleReturnNotConfigured(t *testing.T) {
	cfg := &config.Config{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	handler := NewRouter(cfg, logg, nil, ledger.NewMemoryStore(), nil, &fakeSettler{})

	req := httptest.NewRequest(http.MethodGet, "/users/"+testAddr+"/credits", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if code := errorCode(t, rec); code != "NOT_CONFIGURED" {
		t.Errorf("error code = %s, want NOT_CONFIGURED", code)
	}
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	decodeData(t, rec, &resp)
	if resp.Status != "live" {
		t.Errorf("status = %s, want live", resp.Status)
	}
}
