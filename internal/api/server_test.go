package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bountybot/internal/catalog"
	"bountybot/internal/config"
	"bountybot/internal/crafting"
	"bountybot/internal/game"
	"bountybot/internal/ledger"
	"bountybot/internal/ledger/memstore"
	"bountybot/internal/outcome"
	"bountybot/internal/token"
)

const testKey = "test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	l := ledger.New(memstore.New(), nil)
	acts, err := catalog.Default()
	require.NoError(t, err)
	recipes, err := crafting.DefaultCatalog()
	require.NoError(t, err)
	svc := game.NewService(l, acts, crafting.NewEngine(l, recipes, nil), token.NewCodec("sig"), nil)
	srv := httptest.NewServer(New(config.APIConfig{APIKey: testKey}, nil, svc).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPIKeyRequired(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/v1/accounts/u1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/accounts/u1", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLedgerEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var acct accountView
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/v1/accounts/u1", nil, &acct))
	require.Zero(t, acct.Balance)

	var award ledger.AwardResult
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/accounts/u1/award", amountRequest{Amount: 30}, &award))
	require.Equal(t, int64(30), award.NewBalance)

	var debit ledger.DebitResult
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/accounts/u1/debit", amountRequest{Amount: 50}, &debit))
	require.Equal(t, int64(30), debit.Debited)
	require.Zero(t, debit.NewBalance)

	var errBody map[string]any
	require.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/v1/accounts/u1/award", amountRequest{Amount: 0}, &errBody))
	require.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/v1/accounts/u1/award", map[string]any{"amount": 1, "bogus": true}, &errBody))

	var claim map[string]any
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/accounts/u1/cooldowns/crime/claim", map[string]string{"duration": "5m"}, &claim))
	require.Equal(t, true, claim["ok"])
	require.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/v1/accounts/u1/cooldowns/crime/claim", map[string]string{"duration": "5m"}, &claim))
	require.Equal(t, false, claim["ok"])
	require.Greater(t, claim["remaining_seconds"].(float64), 290.0)

	var inv map[string]any
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/accounts/u1/inventory/ore/add", amountRequest{Amount: 3}, &inv))
	require.Equal(t, float64(3), inv["quantity"])
	require.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/v1/accounts/u1/inventory/ore/remove", amountRequest{Amount: 4}, &inv))
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/accounts/u1/inventory/ore/remove", amountRequest{Amount: 3}, &inv))

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/v1/accounts/u1", nil, &acct))
	require.Empty(t, acct.Items)
	require.Contains(t, acct.Cooldowns, "crime")
}

func TestCraftEndpoint(t *testing.T) {
	srv := newTestServer(t)
	call(t, srv, http.MethodPost, "/v1/accounts/u1/award", amountRequest{Amount: 100}, nil)

	var resp struct {
		Outcome    crafting.Outcome  `json:"outcome"`
		Candidates []crafting.Recipe `json:"candidates"`
	}
	require.Equal(t, http.StatusUnprocessableEntity, call(t, srv, http.MethodPost, "/v1/accounts/u1/craft", map[string]string{"recipe": "steel"}, &resp))
	require.Equal(t, outcome.InsufficientMaterials, resp.Outcome.Failure)
	require.Len(t, resp.Outcome.Missing, 2)

	call(t, srv, http.MethodPost, "/v1/accounts/u1/inventory/ore/add", amountRequest{Amount: 3}, nil)
	call(t, srv, http.MethodPost, "/v1/accounts/u1/inventory/coal/add", amountRequest{Amount: 2}, nil)
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/accounts/u1/craft", map[string]string{"recipe": "steel"}, &resp))
	require.True(t, resp.Outcome.Success)
	require.Equal(t, int64(70), resp.Outcome.Balance)

	require.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/v1/accounts/u1/craft", map[string]string{"recipe": "pick"}, &resp))
	require.Len(t, resp.Candidates, 2)

	var resolved map[string]any
	require.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/v1/recipes/resolve?q=xyzzy", nil, &resolved))
	require.Equal(t, string(outcome.UnknownRecipe), resolved["failure"])
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/v1/recipes/resolve?q=2", nil, &resolved))
}

func TestPresentAndAct(t *testing.T) {
	srv := newTestServer(t)

	var list struct {
		Activities []catalog.Header `json:"activities"`
	}
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/v1/activities?kind=puzzle", nil, &list))
	require.Len(t, list.Activities, 15)

	var p game.Prompt
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/activities/wires-t1/present", presentRequest{UserID: "u1"}, &p))
	require.Len(t, p.Choices, 3)

	var decoded map[string]any
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/tokens/decode", map[string]string{"token": p.Choices[0].Token}, &decoded))
	require.Equal(t, "u1", decoded["owner_id"])
	require.Contains(t, decoded, "seed")

	var out game.Outcome
	require.Equal(t, http.StatusForbidden, call(t, srv, http.MethodPost, "/v1/actions", map[string]string{"actor_id": "u2", "token": p.Choices[0].Token}, &out))
	require.Equal(t, outcome.NotOwner, out.Failure)

	status := call(t, srv, http.MethodPost, "/v1/actions", map[string]string{"actor_id": "u1", "token": p.Choices[0].Token}, &out)
	require.Equal(t, http.StatusOK, status)
	require.True(t, out.Resolved)
	require.True(t, out.Disabled)
	require.NotEmpty(t, out.CorrectChoiceID)

	require.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/v1/actions", map[string]string{"actor_id": "u1", "token": p.Choices[1].Token}, &out))
	require.Equal(t, outcome.CooldownActive, out.Failure)

	require.Equal(t, http.StatusUnprocessableEntity, call(t, srv, http.MethodPost, "/v1/actions", map[string]string{"actor_id": "u1", "token": "1|c|u1|x|y|"}, &out))
	require.Equal(t, outcome.InvalidChoice, out.Failure)

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/v1/activities/random/present", presentRequest{UserID: "u1", Kind: catalog.KindWeighted}, &p))
	require.Equal(t, catalog.KindWeighted, p.Kind)

	var errBody map[string]any
	require.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/v1/activities/nope", nil, &errBody))
}
