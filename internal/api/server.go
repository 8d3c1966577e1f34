package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bountybot/internal/catalog"
	"bountybot/internal/config"
	"bountybot/internal/crafting"
	"bountybot/internal/game"
	"bountybot/internal/ledger"
	"bountybot/internal/outcome"
	"bountybot/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Server exposes the economy core to front-ends that cannot link it
// directly. Callers are trusted services holding the API key; they pass the
// already-resolved user identity in the path or body.
type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	game *game.Service
	mux  *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)

		r.Get("/accounts/{user}", s.handleAccount)
		r.Post("/accounts/{user}/cooldowns/{key}/claim", s.handleClaimCooldown)
		r.Post("/accounts/{user}/award", s.handleAward)
		r.Post("/accounts/{user}/debit", s.handleDebit)
		r.Post("/accounts/{user}/inventory/{item}/add", s.handleInventoryAdd)
		r.Post("/accounts/{user}/inventory/{item}/remove", s.handleInventoryRemove)
		r.Post("/accounts/{user}/craft", s.handleCraft)

		r.Get("/recipes", s.handleRecipes)
		r.Get("/recipes/resolve", s.handleRecipeResolve)

		r.Get("/activities", s.handleActivities)
		r.Post("/activities/random/present", s.handlePresentRandom)
		r.Get("/activities/{id}", s.handleActivity)
		r.Post("/activities/{id}/present", s.handlePresent)

		r.Post("/actions", s.handleAction)
		r.Post("/tokens/decode", s.handleTokenDecode)
	})
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	want := []byte(s.cfg.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r.Header.Get("Authorization"))
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(key), want) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type accountView struct {
	ledger.Account
	Items []ledger.ItemAmount `json:"items"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.game.Ledger().GetOrCreateAccount(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView{Account: acct, Items: acct.Items()})
}

func (s *Server) handleClaimCooldown(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Duration string `json:"duration"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(in.Duration))
	if err != nil {
		writeError(w, http.StatusBadRequest, "duration: "+err.Error())
		return
	}
	user, key := chi.URLParam(r, "user"), chi.URLParam(r, "key")
	res, err := s.game.Ledger().ClaimCooldown(r.Context(), user, key, d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if !res.OK {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{
		"ok":                res.OK,
		"remaining":         res.Remaining.String(),
		"remaining_seconds": res.Remaining.Seconds(),
		"claimed_at":        res.ClaimedAt,
	})
}

type amountRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var in amountRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := chi.URLParam(r, "user")
	res, err := s.game.Ledger().AwardBalance(r.Context(), user, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.audit(r, "award", "user_id", user, "amount", in.Amount, "reason", in.Reason, "balance", res.NewBalance)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var in amountRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := chi.URLParam(r, "user")
	res, err := s.game.Ledger().DebitBalance(r.Context(), user, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.audit(r, "debit", "user_id", user, "amount", in.Amount, "debited", res.Debited, "reason", in.Reason)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInventoryAdd(w http.ResponseWriter, r *http.Request) {
	var in amountRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, item := chi.URLParam(r, "user"), chi.URLParam(r, "item")
	qty, err := s.game.Ledger().AddInventory(r.Context(), user, item, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.audit(r, "inventory add", "user_id", user, "item", item, "amount", in.Amount)
	writeJSON(w, http.StatusOK, map[string]any{"item_id": item, "quantity": qty})
}

func (s *Server) handleInventoryRemove(w http.ResponseWriter, r *http.Request) {
	var in amountRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, item := chi.URLParam(r, "user"), chi.URLParam(r, "item")
	ok, err := s.game.Ledger().RemoveInventory(r.Context(), user, item, in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "failure": outcome.InsufficientMaterials})
		return
	}
	s.audit(r, "inventory remove", "user_id", user, "item", item, "amount", in.Amount)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCraft(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Recipe string `json:"recipe"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := chi.URLParam(r, "user")
	out, candidates, err := s.game.Craft(r.Context(), user, in.Recipe)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.audit(r, "craft", "user_id", user, "recipe", out.Recipe.ID, "success", out.Success, "failure", out.Failure)
	writeJSON(w, statusFor(out.Failure), map[string]any{"outcome": out, "candidates": candidates})
}

func (s *Server) handleRecipes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"recipes": s.game.Recipes().List()})
}

func (s *Server) handleRecipeResolve(w http.ResponseWriter, r *http.Request) {
	recipe, candidates, err := s.game.ResolveRecipe(r.URL.Query().Get("q"))
	if err != nil {
		writeJSON(w, statusFor(outcome.Of(err)), map[string]any{
			"error":      err.Error(),
			"failure":    outcome.Of(err),
			"candidates": candidates,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipe": recipe})
}

type activityView struct {
	Kind     catalog.Kind     `json:"kind"`
	Activity catalog.Activity `json:"activity"`
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	kind := catalog.Kind(strings.TrimSpace(r.URL.Query().Get("kind")))
	list := s.game.Activities().ListKind(kind)
	out := make([]catalog.Header, 0, len(list))
	for _, a := range list {
		out = append(out, a.Meta())
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": out})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	a, ok := s.game.Activities().Get(chi.URLParam(r, "id"))
	if !ok {
		writeDomainError(w, game.ErrUnknownActivity)
		return
	}
	writeJSON(w, http.StatusOK, activityView{Kind: a.Kind(), Activity: a})
}

type presentRequest struct {
	UserID string       `json:"user_id"`
	Kind   catalog.Kind `json:"kind,omitempty"`
}

func (s *Server) handlePresent(w http.ResponseWriter, r *http.Request) {
	var in presentRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.game.Present(r.Context(), in.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePresentRandom(w http.ResponseWriter, r *http.Request) {
	var in presentRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.game.PresentRandom(r.Context(), in.UserID, in.Kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ActorID string `json:"actor_id"`
		Token   string `json:"token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.BuildOutcome(r.Context(), in.ActorID, in.Token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.audit(r, "action", "actor_id", in.ActorID, "activity", out.ActivityID, "success", out.Success, "failure", out.Failure)
	writeJSON(w, statusFor(out.Failure), out)
}

func (s *Server) handleTokenDecode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := s.game.Codec().Decode(in.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body := map[string]any{
		"verb":        tok.Verb,
		"owner_id":    tok.OwnerID,
		"activity_id": tok.ActivityID,
		"choice_id":   tok.ChoiceID,
		"signed":      s.game.Codec().Signed(),
	}
	if tok.HasSeed {
		body["seed"] = tok.Seed
	}
	if p, err := s.game.Rerender(in.Token); err == nil {
		body["prompt"] = p
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) audit(r *http.Request, msg string, args ...any) {
	s.log.Info(msg, append([]any{"request_id", requestID(r)}, args...)...)
}

// statusFor maps a structured failure onto an HTTP status. The body still
// carries the full outcome.
func statusFor(f outcome.Failure) int {
	switch f {
	case outcome.None:
		return http.StatusOK
	case outcome.InsufficientFunds, outcome.InsufficientMaterials, outcome.InvalidChoice:
		return http.StatusUnprocessableEntity
	case outcome.CooldownActive, outcome.RaceLost, outcome.AmbiguousRecipe:
		return http.StatusConflict
	case outcome.UnknownActivity, outcome.UnknownRecipe:
		return http.StatusNotFound
	case outcome.NotOwner:
		return http.StatusForbidden
	case outcome.DatastoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrOverflow):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, crafting.ErrInvalidRecipe), errors.Is(err, token.ErrMalformed), errors.Is(err, token.ErrTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case outcome.Of(err) != outcome.None:
		writeJSON(w, statusFor(outcome.Of(err)), map[string]any{
			"error":   strings.TrimSpace(err.Error()),
			"failure": outcome.Of(err),
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
