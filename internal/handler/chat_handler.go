package handler

import (
	"encoding/json"
	"net/http"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// POST /api/chat
// ============================================================

func chatTurnHandler(svc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/chat")
		defer span.End()

		var req domain.ChatTurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		identity, ok := IdentityFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		span.SetAttributes(attribute.String("user.id", identity.UserID))

		resp, err := svc.SendMessage(ctx, identity, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// GET /api/chats
// ============================================================

func listChatsHandler(svc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/chats")
		defer span.End()

		identity, ok := IdentityFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		chats, err := svc.ListChats(ctx, identity)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, chats)
	}
}

// ============================================================
// GET /api/chat/{chatId}
// DELETE /api/chat/{chatId}
// ============================================================

func getChatMessagesHandler(svc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/chat/{chatId}")
		defer span.End()

		chatID, ok := chatIDParam(w, r)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("chat.id", chatID))

		identity, ok := IdentityFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		msgs, err := svc.GetMessages(ctx, identity, chatID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, msgs)
	}
}

func deleteChatHandler(svc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/chat/{chatId}")
		defer span.End()

		chatID, ok := chatIDParam(w, r)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("chat.id", chatID))

		identity, ok := IdentityFromContext(ctx)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		if err := svc.DeleteChat(ctx, identity, chatID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"message": "Chat deleted"})
	}
}

// chatIDParam reads {chatId} and rejects anything that is not a UUID.
func chatIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "chatId")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid chat ID")
		return "", false
	}
	return id.String(), true
}

// ============================================================
// GET /api/metrics/usage
// ============================================================

func usageHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.UsageSnapshot())
	}
}
