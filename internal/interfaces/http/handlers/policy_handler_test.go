package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"agent-wallet.backend/internal/domain/entities"
	domainerrors "agent-wallet.backend/internal/domain/errors"
	"agent-wallet.backend/pkg/utils"
)

type policyRepoStub struct {
	items map[uuid.UUID]*entities.Policy
}

func newPolicyRepoStub() *policyRepoStub {
	return &policyRepoStub{items: map[uuid.UUID]*entities.Policy{}}
}

func (s *policyRepoStub) Create(_ context.Context, p *entities.Policy) error {
	cpy := *p
	s.items[p.ID] = &cpy
	return nil
}

func (s *policyRepoStub) GetByID(_ context.Context, id uuid.UUID) (*entities.Policy, error) {
	p, ok := s.items[id]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	cpy := *p
	return &cpy, nil
}

func (s *policyRepoStub) GetEnabledByWalletID(_ context.Context, walletID uuid.UUID) ([]*entities.Policy, error) {
	out := []*entities.Policy{}
	for _, p := range s.items {
		if p.Enabled && (p.WalletID == nil || *p.WalletID == walletID) {
			cpy := *p
			out = append(out, &cpy)
		}
	}
	return out, nil
}

func (s *policyRepoStub) Update(_ context.Context, p *entities.Policy) error {
	if _, ok := s.items[p.ID]; !ok {
		return domainerrors.ErrNotFound
	}
	cpy := *p
	s.items[p.ID] = &cpy
	return nil
}

func (s *policyRepoStub) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	p, ok := s.items[id]
	if !ok {
		return domainerrors.ErrNotFound
	}
	p.Enabled = enabled
	return nil
}

func (s *policyRepoStub) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.items[id]; !ok {
		return domainerrors.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type policyWalletRepoStub struct {
	wallet *entities.Wallet
}

func (s policyWalletRepoStub) Create(context.Context, *entities.Wallet) error { return nil }
func (s policyWalletRepoStub) GetByID(_ context.Context, id uuid.UUID) (*entities.Wallet, error) {
	if s.wallet != nil && s.wallet.ID == id {
		return s.wallet, nil
	}
	return nil, domainerrors.ErrNotFound
}
func (s policyWalletRepoStub) List(context.Context, int, int) ([]*entities.Wallet, int, error) {
	return nil, 0, nil
}
func (s policyWalletRepoStub) UpdateStatus(context.Context, uuid.UUID, entities.WalletStatus) error {
	return nil
}
func (s policyWalletRepoStub) SetOwner(context.Context, uuid.UUID, string, bool) error { return nil }

func TestPolicyHandler_CreateListDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	walletID := utils.GenerateUUIDv7()
	repo := newPolicyRepoStub()
	h := NewPolicyHandler(repo, policyWalletRepoStub{wallet: activeWalletFixture(walletID)})

	r := gin.New()
	r.POST("/wallets/:id/policies", h.CreatePolicy)
	r.GET("/wallets/:id/policies", h.ListPolicies)
	r.PUT("/policies/:id/enabled", h.SetPolicyEnabled)
	r.DELETE("/policies/:id", h.DeletePolicy)

	body := []byte(`{"type":"SPENDING_LIMIT","rules":{"instantMax":"1000000","delayMax":"5000000"}}`)
	req := httptest.NewRequest(http.MethodPost, "/wallets/"+walletID.String()+"/policies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}

	var created struct {
		Policy entities.Policy `json:"policy"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if !created.Policy.Enabled {
		t.Fatalf("expected policy enabled by default")
	}
	if created.Policy.Type != entities.PolicySpendingLimit {
		t.Fatalf("unexpected type %s", created.Policy.Type)
	}

	req = httptest.NewRequest(http.MethodGet, "/wallets/"+walletID.String()+"/policies", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for list, got %d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPut, "/policies/"+created.Policy.ID.String()+"/enabled", bytes.NewBufferString(`{"enabled":false}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for disable, got %d body=%s", w.Code, w.Body.String())
	}
	if repo.items[created.Policy.ID].Enabled {
		t.Fatalf("expected policy disabled")
	}

	req = httptest.NewRequest(http.MethodDelete, "/policies/"+created.Policy.ID.String(), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d body=%s", w.Code, w.Body.String())
	}
	if len(repo.items) != 0 {
		t.Fatalf("expected policy removed")
	}
}

func TestPolicyHandler_CreatePolicy_Validation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	walletID := utils.GenerateUUIDv7()
	h := NewPolicyHandler(newPolicyRepoStub(), policyWalletRepoStub{wallet: activeWalletFixture(walletID)})

	r := gin.New()
	r.POST("/wallets/:id/policies", h.CreatePolicy)

	// Unknown policy kinds are rejected up front; the engine would fail
	// closed on them anyway.
	body := []byte(`{"type":"NO_SUCH_POLICY","rules":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/wallets/"+walletID.String()+"/policies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d body=%s", w.Code, w.Body.String())
	}

	body = []byte(`{"type":"WHITELIST","rules":{"addresses":["0xabc"]}}`)
	req = httptest.NewRequest(http.MethodPost, "/wallets/"+uuid.NewString()+"/policies", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown wallet, got %d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/wallets/"+walletID.String()+"/policies", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d body=%s", w.Code, w.Body.String())
	}
}
