package service

import (
	"context"
	"errors"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/infra/observability"
	"github.com/letschat/chat-api/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/chat")

// ChatService orchestrates one chat turn and the chat history reads.
//
// A turn runs strictly in this order:
//  1. first turn only: summarize the message into a title and create the chat
//  2. persist the user message
//  3. call the model with the history plus the new message
//  4. persist the assistant reply
//
// Nothing is rolled back: if step 3 or 4 fails the user message stays.
type ChatService struct {
	chats      port.ChatStore
	messages   port.MessageStore
	llm        port.ChatCompleter
	summarizer *Summarizer
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewChatService creates the chat service with all dependencies injected.
func NewChatService(
	chats port.ChatStore,
	messages port.MessageStore,
	llm port.ChatCompleter,
	summarizer *Summarizer,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		chats:      chats,
		messages:   messages,
		llm:        llm,
		summarizer: summarizer,
		metrics:    metrics,
		logger:     logger,
	}
}

// SendMessage runs one chat turn for owner.
func (s *ChatService) SendMessage(ctx context.Context, owner domain.Identity, req *domain.ChatTurnRequest) (resp *domain.ChatTurnResponse, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.SendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("chat.history_length", len(req.History)),
	)

	// Validation happens before any side effect.
	history, err := validateTurn(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("chat_turn", time.Since(start))
		if err != nil {
			s.metrics.IncrTurn("error")
		} else {
			s.metrics.IncrTurn("success")
		}
	}()

	userMsg := domain.ChatMessage{Role: domain.RoleUser, Content: req.Content}
	newChat := len(req.History) == 0

	chatID := req.ChatID
	if newChat {
		title, err := s.summarizer.Summarize(ctx, req.Model, userMsg)
		if err != nil {
			return nil, inferenceError(err)
		}

		chat, err := s.chats.CreateChat(ctx, owner, title)
		if err != nil || chat == nil || chat.ID == "" {
			if err == nil {
				err = errors.New("store returned no chat id")
			}
			s.logger.Error("failed to create chat", zap.String("user_id", owner.UserID), zap.Error(err))
			return nil, &domain.ErrInternal{Message: "Failed to create chat", Err: err}
		}
		chatID = chat.ID
		s.logger.Info("chat created", zap.String("chat_id", chatID), zap.String("user_id", owner.UserID))
	}
	span.SetAttributes(attribute.String("chat.id", chatID))

	if err := s.messages.AppendMessage(ctx, owner, chatID, domain.RoleUser, req.Content); err != nil {
		s.logger.Error("failed to store user message", zap.String("chat_id", chatID), zap.Error(err))
		return nil, &domain.ErrInternal{Message: "Failed to create message", Err: err}
	}

	completion, err := s.llm.Chat(ctx, req.Model, append(history, userMsg))
	if err != nil {
		return nil, inferenceError(err)
	}

	if err := s.messages.AppendMessage(ctx, owner, chatID, domain.RoleAssistant, completion.Message.Content); err != nil {
		s.logger.Error("failed to store assistant message", zap.String("chat_id", chatID), zap.Error(err))
		return nil, &domain.ErrInternal{Message: "Failed to create message", Err: err}
	}

	if !newChat {
		if err := s.chats.TouchChat(ctx, owner, chatID, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to update chat", zap.String("chat_id", chatID), zap.Error(err))
		}
	}

	role := completion.Message.Role
	if role == "" {
		role = domain.RoleAssistant
	}

	return &domain.ChatTurnResponse{
		Content:   completion.Message.Content,
		Role:      role,
		Timestamp: completion.CreatedAt,
		ChatID:    chatID,
	}, nil
}

// ListChats returns owner's chats, most recently updated first.
func (s *ChatService) ListChats(ctx context.Context, owner domain.Identity) ([]domain.ChatSummary, error) {
	ctx, span := tracer.Start(ctx, "ChatService.ListChats")
	defer span.End()

	chats, err := s.chats.ListChats(ctx, owner)
	if err != nil {
		s.logger.Error("failed to list chats", zap.String("user_id", owner.UserID), zap.Error(err))
		return nil, &domain.ErrInternal{Message: "Failed to fetch chats", Err: err}
	}

	out := make([]domain.ChatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, domain.ChatSummary{ID: c.ID, Name: c.Name, UpdatedAt: c.UpdatedAt})
	}
	return out, nil
}

// GetMessages returns the messages of one chat, oldest first.
func (s *ChatService) GetMessages(ctx context.Context, owner domain.Identity, chatID string) ([]domain.MessageView, error) {
	ctx, span := tracer.Start(ctx, "ChatService.GetMessages")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	msgs, err := s.chats.ListMessages(ctx, owner, chatID)
	if err != nil {
		s.logger.Error("failed to fetch messages", zap.String("chat_id", chatID), zap.Error(err))
		return nil, &domain.ErrInternal{Message: "Failed to fetch messages", Err: err}
	}

	out := make([]domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, domain.MessageView{Content: m.Content, Role: m.Role, Timestamp: m.CreatedAt})
	}
	return out, nil
}

// DeleteChat removes one of owner's chats.
func (s *ChatService) DeleteChat(ctx context.Context, owner domain.Identity, chatID string) error {
	ctx, span := tracer.Start(ctx, "ChatService.DeleteChat")
	defer span.End()
	span.SetAttributes(attribute.String("chat.id", chatID))

	if err := s.chats.DeleteChat(ctx, owner, chatID); err != nil {
		s.logger.Error("failed to delete chat", zap.String("chat_id", chatID), zap.Error(err))
		return &domain.ErrInternal{Message: "Failed to delete chat", Err: err}
	}
	s.logger.Info("chat deleted", zap.String("chat_id", chatID), zap.String("user_id", owner.UserID))
	return nil
}

// validateTurn checks the request in a fixed order and maps the history.
func validateTurn(req *domain.ChatTurnRequest) ([]domain.ChatMessage, error) {
	if req.Model == "" {
		return nil, &domain.ErrValidation{Field: "model", Message: "Model is required"}
	}
	if req.Content == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "Content is required"}
	}
	history, err := domain.ToChatMessages(req.History)
	if err != nil {
		return nil, err
	}
	if len(req.History) > 0 && req.ChatID == "" {
		return nil, &domain.ErrValidation{Field: "chatId", Message: "Chat ID is required"}
	}
	return history, nil
}

// inferenceError wraps a model failure, echoing its cause to the caller.
func inferenceError(err error) error {
	detail := "Unknown error"
	var ext *domain.ErrExternalService
	switch {
	case errors.As(err, &ext) && ext.Err != nil && ext.Err.Error() != "":
		detail = ext.Err.Error()
	case err.Error() != "":
		detail = err.Error()
	}
	return &domain.ErrInternal{Message: "Internal server error", Detail: detail, Err: err}
}
