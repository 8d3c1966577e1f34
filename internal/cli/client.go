package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bountybot/internal/catalog"
	"bountybot/internal/crafting"
	"bountybot/internal/game"
	"bountybot/internal/ledger"
	"bountybot/internal/outcome"

	"github.com/google/uuid"
)

// APIError is a non-2xx response that did not carry a structured outcome.
type APIError struct {
	Status  int
	Message string
	Failure outcome.Failure
}

func (e *APIError) Error() string {
	if e.Failure != outcome.None {
		return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Failure, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Account struct {
	ledger.Account
	Items []ledger.ItemAmount `json:"items"`
}

func (c *Client) Account(ctx context.Context, userID string) (Account, error) {
	var out Account
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/accounts/"+url.PathEscape(userID), nil, &out, false)
	return out, err
}

func (c *Client) Award(ctx context.Context, userID string, amount int64, reason string) (ledger.AwardResult, error) {
	var out ledger.AwardResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(userID)+"/award", map[string]any{
		"amount": amount,
		"reason": reason,
	}, &out, false)
	return out, err
}

func (c *Client) Debit(ctx context.Context, userID string, amount int64, reason string) (ledger.DebitResult, error) {
	var out ledger.DebitResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(userID)+"/debit", map[string]any{
		"amount": amount,
		"reason": reason,
	}, &out, false)
	return out, err
}

func (c *Client) AddItem(ctx context.Context, userID, itemID string, amount int64) (int64, error) {
	var out struct {
		Quantity int64 `json:"quantity"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/inventory/%s/add", url.PathEscape(userID), url.PathEscape(itemID))
	err := c.jsonRequest(ctx, http.MethodPost, path, map[string]any{"amount": amount}, &out, false)
	return out.Quantity, err
}

func (c *Client) RemoveItem(ctx context.Context, userID, itemID string, amount int64) error {
	path := fmt.Sprintf("/v1/accounts/%s/inventory/%s/remove", url.PathEscape(userID), url.PathEscape(itemID))
	return c.jsonRequest(ctx, http.MethodPost, path, map[string]any{"amount": amount}, nil, false)
}

func (c *Client) Recipes(ctx context.Context) ([]crafting.Recipe, error) {
	var out struct {
		Recipes []crafting.Recipe `json:"recipes"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/recipes", nil, &out, false)
	return out.Recipes, err
}

type CraftResult struct {
	Outcome    crafting.Outcome  `json:"outcome"`
	Candidates []crafting.Recipe `json:"candidates"`
}

func (c *Client) Craft(ctx context.Context, userID, query string) (CraftResult, error) {
	var out CraftResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/accounts/"+url.PathEscape(userID)+"/craft", map[string]any{
		"recipe": query,
	}, &out, true)
	return out, err
}

func (c *Client) Activities(ctx context.Context, kind catalog.Kind) ([]catalog.Header, error) {
	path := "/v1/activities"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(string(kind))
	}
	var out struct {
		Activities []catalog.Header `json:"activities"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, false)
	return out.Activities, err
}

func (c *Client) Present(ctx context.Context, userID, activityID string) (game.Prompt, error) {
	var out game.Prompt
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/activities/"+url.PathEscape(activityID)+"/present", map[string]any{
		"user_id": userID,
	}, &out, false)
	return out, err
}

func (c *Client) PresentRandom(ctx context.Context, userID string, kind catalog.Kind) (game.Prompt, error) {
	var out game.Prompt
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/activities/random/present", map[string]any{
		"user_id": userID,
		"kind":    kind,
	}, &out, false)
	return out, err
}

func (c *Client) Act(ctx context.Context, actorID, token string) (game.Outcome, error) {
	var out game.Outcome
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/actions", map[string]any{
		"actor_id": actorID,
		"token":    token,
	}, &out, true)
	return out, err
}

func (c *Client) DecodeToken(ctx context.Context, token string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/tokens/decode", map[string]any{"token": token}, &out, false)
	return out, err
}

// jsonRequest sends in as JSON and decodes the reply into out. With
// structured set, error statuses whose body names a failure are decoded into
// out as well, since those bodies are outcomes rather than errors.
func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, structured bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var probe struct {
			Error   string          `json:"error"`
			Failure outcome.Failure `json:"failure"`
			Outcome *struct {
				Failure outcome.Failure `json:"failure"`
			} `json:"outcome"`
		}
		_ = json.Unmarshal(raw, &probe)
		hasOutcome := probe.Failure != outcome.None || (probe.Outcome != nil && probe.Outcome.Failure != outcome.None)
		if structured && hasOutcome && probe.Error == "" && out != nil {
			return json.Unmarshal(raw, out)
		}
		msg := probe.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: msg, Failure: probe.Failure}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
