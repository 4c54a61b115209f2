package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const minChargeMinor = 50 // providers reject amounts below their minimum

// SimGateway is an in-process payment processor used for development and
// tests. It validates requests the way a real provider would and signs its
// webhook payloads with the shared secret.
type SimGateway struct {
	secret []byte
	now    func() time.Time

	mu       sync.Mutex
	accounts map[string]bool
	intents  map[string]*IntentRequest
}

func NewSimGateway(secret []byte) *SimGateway {
	return &SimGateway{
		secret:   secret,
		now:      time.Now,
		accounts: make(map[string]bool),
		intents:  make(map[string]*IntentRequest),
	}
}

func (g *SimGateway) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountMinor < minChargeMinor {
		return nil, &GatewayError{Code: "amount_too_small", Message: "amount below provider minimum"}
	}
	if req.TransferDestination != "" && !g.onboarded(req.TransferDestination) {
		return nil, &GatewayError{Code: "invalid_account", Message: "transfer destination is not onboarded"}
	}

	id := "pi_" + uuid.NewString()
	g.mu.Lock()
	g.intents[id] = &req
	g.mu.Unlock()

	return &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		Status:       "requires_payment_method",
	}, nil
}

func (g *SimGateway) CreateRefund(_ context.Context, paymentRef string, amountMinor int64, _ string) (*RefundResult, error) {
	if paymentRef == "" {
		return nil, &GatewayError{Code: "missing_payment", Message: "payment reference is required"}
	}
	if amountMinor < 0 {
		return nil, &GatewayError{Code: "invalid_amount", Message: "refund amount must not be negative"}
	}
	return &RefundResult{ID: "re_" + uuid.NewString(), Status: "succeeded"}, nil
}

func (g *SimGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if err := verifySignature(g.secret, payload, signatureHeader, g.now()); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &SignatureError{Reason: "payload is not a valid event"}
	}
	if event.ID == "" || event.Type == "" {
		return nil, &SignatureError{Reason: "event id or type missing"}
	}
	return &event, nil
}

func (g *SimGateway) AccountOnboarded(_ context.Context, accountRef string) (bool, error) {
	return g.onboarded(accountRef), nil
}

// OnboardAccount registers a seller account as payout-capable.
func (g *SimGateway) OnboardAccount(accountRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[accountRef] = true
}

// SignedEvent marshals an event and signs it, producing the payload and
// signature header a provider callback would carry.
func (g *SimGateway) SignedEvent(event Event) ([]byte, string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, "", fmt.Errorf("marshal event: %w", err)
	}
	return payload, SignatureHeader(g.secret, g.now().Unix(), payload), nil
}

func (g *SimGateway) onboarded(accountRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accounts[accountRef]
}
