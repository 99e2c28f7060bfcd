package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/metrics"
)

// Fallback replies stored in place of a generated answer.
const (
	EmptyResponseReply = "I apologize, but I couldn't generate a response at this time."
	FailureReply       = "I apologize, but I'm experiencing technical difficulties. Please try again later."
)

const defaultTimeout = 30 * time.Second

// Response is the assistant reply for one turn.
type Response struct {
	Content      string
	ResponseTime time.Duration
	Failed       bool
}

// Service wraps a Client with prompt formatting, a call timeout and the
// apology fallbacks.
type Service struct {
	client  Client
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a generation service. m may be nil.
func NewService(client Client, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:  client,
		timeout: timeout,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Respond produces the assistant reply for message. It never returns an
// error: failures and empty output are replaced by the fallback replies.
func (s *Service) Respond(ctx context.Context, systemPrompt string, history []domain.ChatMessage, message string) Response {
	start := s.now()
	prompt := BuildPrompt(systemPrompt, history, message)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.client.Generate(callCtx, prompt)
	elapsed := s.now().Sub(start)

	provider := s.client.Provider()
	switch {
	case err != nil:
		s.logger.Error("Text generation failed", "provider", provider, "error", err, "elapsed", elapsed)
		s.metrics.RecordGeneration(provider, metrics.StatusError, elapsed)
		return Response{Content: FailureReply, ResponseTime: elapsed, Failed: true}
	case strings.TrimSpace(text) == "":
		s.logger.Warn("Text generation returned no content", "provider", provider)
		s.metrics.RecordGeneration(provider, metrics.StatusEmpty, elapsed)
		return Response{Content: EmptyResponseReply, ResponseTime: elapsed}
	default:
		s.metrics.RecordGeneration(provider, metrics.StatusSuccess, elapsed)
		return Response{Content: text, ResponseTime: elapsed}
	}
}
