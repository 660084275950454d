// Package httpapi exposes the wager layer services over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/wager_layer/internal/app"
	"github.com/R3E-Network/wager_layer/internal/app/assets"
	"github.com/R3E-Network/wager_layer/internal/app/domain/challenge"
	"github.com/R3E-Network/wager_layer/internal/app/metrics"
	challengesvc "github.com/R3E-Network/wager_layer/internal/app/services/challenges"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// Options configures transport-level behaviour of the handler.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application, opts Options) http.Handler {
	h := &handler{app: application}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/accounts", h.createAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts", h.listAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{account}", h.getAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{account}", h.deactivateAccount).Methods(http.MethodDelete)
	r.HandleFunc("/accounts/{account}/credit", h.creditAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{account}/balance", h.accountBalance).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{account}/transactions", h.accountTransactions).Methods(http.MethodGet)

	r.HandleFunc("/challenges", h.createChallenge).Methods(http.MethodPost)
	r.HandleFunc("/challenges", h.listChallenges).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{challenge}", h.getChallenge).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{challenge}/join", h.joinChallenge).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{challenge}/scores", h.submitScore).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{challenge}/end", h.endChallenge).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{challenge}/cancel", h.cancelChallenge).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{challenge}/participants", h.listParticipants).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{challenge}/leaderboard", h.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{challenge}/vault", h.vaultBalance).Methods(http.MethodGet)

	var wrapped http.Handler = r
	if opts.RateLimitRPS > 0 {
		wrapped = newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst).Handler(wrapped)
	}
	wrapped = newCORSMiddleware(opts.AllowedOrigins).Handler(wrapped)
	return metrics.InstrumentHandler(wrapped)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// --- accounts ---------------------------------------------------------------

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Owner         string            `json:"owner"`
		WalletAddress string            `json:"wallet_address"`
		Metadata      map[string]string `json:"metadata"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	acct, err := h.app.Accounts.Register(r.Context(), payload.Owner, payload.WalletAddress, payload.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.app.Accounts.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, accts)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.app.Accounts.Get(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.app.Accounts.Deactivate(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (h *handler) creditAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Denomination string `json:"denomination"`
		Amount       int64  `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	bal, err := h.app.Accounts.Credit(r.Context(), mux.Vars(r)["account"], challenge.Denomination(payload.Denomination), payload.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	denom := challenge.Denomination(r.URL.Query().Get("denomination"))
	bal, err := h.app.Accounts.Balance(r.Context(), mux.Vars(r)["account"], denom)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *handler) accountTransactions(w http.ResponseWriter, r *http.Request) {
	denom := challenge.Denomination(r.URL.Query().Get("denomination"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.app.Accounts.Transactions(r.Context(), mux.Vars(r)["account"], denom, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// --- challenges -------------------------------------------------------------

func (h *handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Creator      string `json:"creator"`
		EntryFee     int64  `json:"entry_fee"`
		DurationSecs int64  `json:"duration_secs"`
		Type         string `json:"type"`
		Goal         int64  `json:"goal"`
		Denomination string `json:"denomination"`
		IsPublic     bool   `json:"is_public"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ch, err := h.app.Challenges.Create(r.Context(), challengesvc.CreateParams{
		Creator:      payload.Creator,
		EntryFee:     payload.EntryFee,
		Duration:     time.Duration(payload.DurationSecs) * time.Second,
		Type:         challenge.Type(payload.Type),
		Goal:         payload.Goal,
		Denomination: challenge.Denomination(payload.Denomination),
		IsPublic:     payload.IsPublic,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := storage.ChallengeFilter{
		Creator:    r.URL.Query().Get("creator"),
		Status:     challenge.Status(r.URL.Query().Get("status")),
		PublicOnly: r.URL.Query().Get("public") == "true",
		Limit:      limit,
	}
	list, err := h.app.Challenges.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) getChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := h.app.Challenges.Get(r.Context(), mux.Vars(r)["challenge"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) joinChallenge(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Player       string `json:"player"`
		Denomination string `json:"denomination"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Challenges.Join(r.Context(), mux.Vars(r)["challenge"], payload.Player, challenge.Denomination(payload.Denomination))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handler) submitScore(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Player           string `json:"player"`
		Score            int64  `json:"score"`
		VerificationHash string `json:"verification_hash"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := h.app.Challenges.SubmitScore(r.Context(), mux.Vars(r)["challenge"], payload.Player, payload.Score, payload.VerificationHash)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) endChallenge(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Authority    string `json:"authority"`
		Winner       string `json:"winner"`
		FeeRecipient string `json:"fee_recipient"`
		Denomination string `json:"denomination"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ch, err := h.app.Challenges.End(r.Context(), mux.Vars(r)["challenge"], payload.Authority, payload.Winner, payload.FeeRecipient, challenge.Denomination(payload.Denomination))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) cancelChallenge(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Creator string `json:"creator"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ch, err := h.app.Challenges.Cancel(r.Context(), mux.Vars(r)["challenge"], payload.Creator)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *handler) listParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Challenges.Participants(r.Context(), mux.Vars(r)["challenge"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Challenges.Leaderboard(r.Context(), mux.Vars(r)["challenge"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) vaultBalance(w http.ResponseWriter, r *http.Request) {
	challengeID := mux.Vars(r)["challenge"]
	held, err := h.app.Challenges.VaultBalance(r.Context(), challengeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"challenge_id": challengeID,
		"address":      h.app.Vault.Address(challengeID),
		"amount":       held,
	})
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, challengesvc.ErrNotCreator),
		errors.Is(err, challengesvc.ErrWrongPaymentType):
		return http.StatusForbidden
	case errors.Is(err, challengesvc.ErrChallengeClosed),
		errors.Is(err, challengesvc.ErrChallengeEnded),
		errors.Is(err, challengesvc.ErrChallengeNotOver),
		errors.Is(err, challengesvc.ErrAlreadyJoined),
		errors.Is(err, challengesvc.ErrNotJoined),
		errors.Is(err, challengesvc.ErrHasParticipants),
		errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, assets.ErrInsufficientFunds):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
