package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parlorhq/parlor/internal/core"
	"github.com/parlorhq/parlor/internal/core/engine"
	apperrors "github.com/parlorhq/parlor/internal/errors"
)

// TransportHTTP labels turns that arrive over the HTTP API.
const TransportHTTP = "http"

const maxMessageBodyBytes = 64 << 10

// TurnHandler runs one conversational turn.
type TurnHandler interface {
	Handle(ctx context.Context, userID, message string) (string, error)
}

// ConversationReader returns a user's persisted context, or nil when the
// user has never written.
type ConversationReader interface {
	Conversation(ctx context.Context, userID string) (*core.ConversationState, error)
}

// ConversationResetter discards a user's persisted context and reports
// whether there was any.
type ConversationResetter interface {
	ResetConversation(ctx context.Context, userID string) (bool, error)
}

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// MessageResponse carries the generated reply.
type MessageResponse struct {
	UserID string `json:"user_id"`
	Reply  string `json:"reply"`
}

// ConversationResponse exposes the stored summary and pending buffer.
type ConversationResponse struct {
	UserID       string    `json:"user_id"`
	Summary      string    `json:"summary"`
	Buffer       []string  `json:"buffer"`
	PendingCount int       `json:"pending_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// RelayHandlers serves the conversational API.
type RelayHandlers struct {
	Turns         TurnHandler
	Conversations ConversationReader
	Resetter      ConversationResetter
}

// PostMessage runs a turn for the user in the request body.
func (h *RelayHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Turns == nil {
		respondWithError(w, r, apperrors.NewUnavailableError("relay not configured"))
		return
	}

	var req MessageRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be a JSON object with user_id and message"))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), nil, "user_id is required"))
		return
	}

	ctx := engine.WithTransport(r.Context(), TransportHTTP)
	reply, err := h.Turns.Handle(ctx, req.UserID, req.Message)
	if err != nil {
		respondWithError(w, r, apperrors.FromRelayError(r.Context(), err))
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{UserID: strings.TrimSpace(req.UserID), Reply: reply})
}

// GetConversation returns the stored context for {userID}.
func (h *RelayHandlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Conversations == nil {
		respondWithError(w, r, apperrors.NewUnavailableError("conversation store not configured"))
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	state, err := h.Conversations.Conversation(r.Context(), userID)
	if err != nil {
		respondWithError(w, r, apperrors.FromRelayError(r.Context(), err))
		return
	}
	if state == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("no conversation for user "+userID))
		return
	}

	buffer := state.Buffer
	if buffer == nil {
		buffer = []string{}
	}
	writeJSON(w, http.StatusOK, ConversationResponse{
		UserID:       state.UserID,
		Summary:      state.Summary,
		Buffer:       buffer,
		PendingCount: state.PendingCount,
		LastUpdated:  state.LastUpdated.UTC(),
	})
}

// DeleteConversation discards the stored context for {userID}.
func (h *RelayHandlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Resetter == nil {
		respondWithError(w, r, apperrors.NewUnavailableError("conversation store not configured"))
		return
	}

	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	found, err := h.Resetter.ResetConversation(r.Context(), userID)
	if err != nil {
		respondWithError(w, r, apperrors.FromRelayError(r.Context(), err))
		return
	}
	if !found {
		respondWithError(w, r, apperrors.NewNotFoundError("no conversation for user "+userID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
