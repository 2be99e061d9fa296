package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"clawfinance/internal/domain/connection"
	"clawfinance/internal/domain/openfinance"
	"clawfinance/internal/infrastructure/flinks"
	"clawfinance/internal/shared/middleware"
)

// StatusChallenge is what the provider uses for "answer a challenge"; the
// API reuses it for every mfa_required response.
const StatusChallenge = 203

const (
	pendingMessage = "Account data is still being prepared. Retry the sync in a minute."
	mfaMessage     = "The institution requires additional authentication. Answer the challenge at /api/connections/mfa."
)

// ConnectionHandler exposes the connection lifecycle and sync.
type ConnectionHandler struct {
	connections *connection.Service
	sync        *openfinance.SyncService
	logger      *slog.Logger
}

func NewConnectionHandler(connections *connection.Service, sync *openfinance.SyncService, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionHandler{connections: connections, sync: sync, logger: logger}
}

type authorizeRequest struct {
	Institution string `json:"institution" validate:"required,max=200"`
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required"`
}

type mfaRequest struct {
	RequestID string            `json:"request_id" validate:"required"`
	Responses map[string]string `json:"responses" validate:"required,min=1"`
}

type challengeResponse struct {
	Type    string   `json:"type"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

type authResponse struct {
	Status       string              `json:"status"`
	ConnectionID string              `json:"connection_id"`
	RequestID    string              `json:"request_id"`
	LoginID      string              `json:"login_id,omitempty"`
	Institution  string              `json:"institution"`
	Challenges   []challengeResponse `json:"challenges,omitempty"`
}

type syncResponse struct {
	Status             string              `json:"status"`
	AccountsSynced     *int                `json:"accounts_synced,omitempty"`
	TransactionsSynced *int                `json:"transactions_synced,omitempty"`
	SyncedAt           *time.Time          `json:"synced_at,omitempty"`
	RequestID          string              `json:"request_id,omitempty"`
	Message            string              `json:"message,omitempty"`
	Challenges         []challengeResponse `json:"challenges,omitempty"`
}

type connectionResponse struct {
	ID           string     `json:"id"`
	Institution  string     `json:"institution"`
	Status       string     `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type disconnectResponse struct {
	Status      string `json:"status"`
	Institution string `json:"institution"`
}

type liveAccountResponse struct {
	ID             string              `json:"id"`
	Title          string              `json:"title"`
	Mask           string              `json:"mask"`
	Type           string              `json:"type"`
	Subtype        string              `json:"subtype"`
	Currency       string              `json:"currency"`
	BalanceCurrent decimal.Decimal     `json:"balance_current"`
	BalanceAvail   decimal.NullDecimal `json:"balance_available"`
	BalanceLimit   decimal.NullDecimal `json:"balance_limit"`
}

type liveAccountsResponse struct {
	Status       string                `json:"status"`
	ConnectionID string                `json:"connection_id"`
	Institution  string                `json:"institution"`
	Accounts     []liveAccountResponse `json:"accounts"`
}

// HandleAuthorize starts a connection from raw credentials.
func (h *ConnectionHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, ok := decodeAndValidate[authorizeRequest](w, r)
	if !ok {
		return
	}

	result, err := h.connections.Start(r.Context(), connection.StartParams{
		UserID:      userID,
		Institution: req.Institution,
		Username:    req.Username,
		Password:    req.Password,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.writeAuthResult(w, result)
}

// HandleMFA answers an outstanding challenge.
func (h *ConnectionHandler) HandleMFA(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req, ok := decodeAndValidate[mfaRequest](w, r)
	if !ok {
		return
	}

	result, err := h.connections.AnswerChallenge(r.Context(), userID, req.RequestID, req.Responses)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.writeAuthResult(w, result)
}

func (h *ConnectionHandler) writeAuthResult(w http.ResponseWriter, result *connection.AuthResult) {
	resp := authResponse{
		ConnectionID: result.Connection.ID,
		Institution:  result.Connection.Institution,
	}

	if result.Challenge != nil {
		resp.Status = string(connection.StatusMFARequired)
		resp.RequestID = result.Challenge.RequestID
		resp.Challenges = toChallengeResponses(result.Challenge)
		writeJSON(w, StatusChallenge, resp)
		return
	}

	resp.Status = "connected"
	resp.RequestID = result.Session.RequestID
	resp.LoginID = result.Session.LoginID
	writeJSON(w, http.StatusOK, resp)
}

// HandleSync runs one sync for the caller's connection. It can take several
// minutes while the provider prepares the data.
func (h *ConnectionHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	result, err := h.sync.Sync(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	switch result.Outcome {
	case openfinance.OutcomePending:
		writeJSON(w, http.StatusAccepted, syncResponse{
			Status:    string(result.Outcome),
			RequestID: result.RequestID,
			Message:   pendingMessage,
		})
	case openfinance.OutcomeMFARequired:
		writeJSON(w, StatusChallenge, syncResponse{
			Status:     string(result.Outcome),
			RequestID:  result.RequestID,
			Message:    mfaMessage,
			Challenges: toChallengeResponses(result.Challenge),
		})
	default:
		writeJSON(w, http.StatusOK, syncResponse{
			Status:             string(result.Outcome),
			AccountsSynced:     &result.Accounts,
			TransactionsSynced: &result.Transactions,
			SyncedAt:           result.SyncedAt,
		})
	}
}

// HandleDisconnect ends a connection. A second disconnect is a 404.
func (h *ConnectionHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	conn, err := h.connections.Disconnect(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, disconnectResponse{
		Status:      string(connection.StatusDisconnected),
		Institution: conn.Institution,
	})
}

func (h *ConnectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conns, err := h.connections.List(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	data := make([]connectionResponse, 0, len(conns))
	for _, c := range conns {
		data = append(data, toConnectionResponse(c))
	}
	writeJSON(w, http.StatusOK, listResponse[connectionResponse]{Data: data})
}

func (h *ConnectionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	conn, err := h.connections.Get(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectionResponse(conn))
}

// HandleLiveAccounts returns balances straight from the provider. Nothing is
// stored.
func (h *ConnectionHandler) HandleLiveAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}

	summary, err := h.connections.AccountSummary(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if summary.Challenge != nil {
		writeJSON(w, StatusChallenge, syncResponse{
			Status:     string(connection.StatusMFARequired),
			RequestID:  summary.Challenge.RequestID,
			Message:    mfaMessage,
			Challenges: toChallengeResponses(summary.Challenge),
		})
		return
	}

	accounts := make([]liveAccountResponse, 0, len(summary.Accounts))
	for _, a := range summary.Accounts {
		accounts = append(accounts, liveAccountResponse{
			ID:             a.ID,
			Title:          a.Title,
			Mask:           flinks.MaskAccountNumber(a.AccountNumber),
			Type:           flinks.MapAccountType(a.Category),
			Subtype:        flinks.MapAccountSubtype(a.Type),
			Currency:       a.Currency,
			BalanceCurrent: a.Balance.Current,
			BalanceAvail:   a.Balance.Available,
			BalanceLimit:   a.Balance.Limit,
		})
	}
	writeJSON(w, http.StatusOK, liveAccountsResponse{
		Status:       string(summary.Connection.Status),
		ConnectionID: summary.Connection.ID,
		Institution:  summary.Connection.Institution,
		Accounts:     accounts,
	})
}

func toConnectionResponse(c *connection.Connection) connectionResponse {
	return connectionResponse{
		ID:           c.ID,
		Institution:  c.Institution,
		Status:       string(c.Status),
		LastSyncedAt: c.LastSyncedAt,
		ErrorMessage: c.ErrorMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func toChallengeResponses(ch *flinks.Challenge) []challengeResponse {
	if ch == nil {
		return nil
	}
	out := make([]challengeResponse, 0, len(ch.Challenges))
	for _, c := range ch.Challenges {
		out = append(out, challengeResponse{Type: c.Type, Prompt: c.Prompt, Options: c.Options})
	}
	return out
}
