package service

import (
	"context"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/letschat/chat-api/internal/port"

	"go.uber.org/zap"
)

const summaryInstruction = "Summarize the current conversation in seven words or less, declaratively without the user being mentioned."

// Summarizer produces a chat title from the first user message.
type Summarizer struct {
	llm          port.ChatCompleter
	defaultModel string
	logger       *zap.Logger
}

// NewSummarizer creates a Summarizer. When defaultModel is empty the
// model of the turn being titled is used.
func NewSummarizer(llm port.ChatCompleter, defaultModel string, logger *zap.Logger) *Summarizer {
	return &Summarizer{llm: llm, defaultModel: defaultModel, logger: logger}
}

// Summarize returns the model's reply verbatim. The length limit in the
// instruction is advisory: the title may be empty or long.
func (s *Summarizer) Summarize(ctx context.Context, model string, pending domain.ChatMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "Summarizer.Summarize")
	defer span.End()

	if s.defaultModel != "" {
		model = s.defaultModel
	}

	completion, err := s.llm.Chat(ctx, model, []domain.ChatMessage{
		pending,
		{Role: domain.RoleSystem, Content: summaryInstruction},
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("chat title generated",
		zap.String("model", model),
		zap.Int("title_length", len(completion.Message.Content)),
	)
	return completion.Message.Content, nil
}
