// Package persona generates replies that imitate a user from their own messages.
package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/tensai/plugin/ai"
	"github.com/hrygo/tensai/plugin/ai/timeout"
)

var (
	// ErrGenerationTimeout is returned when the model does not answer in time.
	ErrGenerationTimeout = errors.New("response generation timed out")
	// ErrGenerationFailed is returned for any other generation failure, including empty output.
	ErrGenerationFailed = errors.New("response generation failed")
)

// Request is the input of one generation.
type Request struct {
	// Message is the incoming message to answer.
	Message string
	// Username is the user to impersonate.
	Username string
	// Context holds the user's messages used as style and fact exemplars.
	Context []string
}

// Generator produces persona replies through an LLM with a hard timeout.
type Generator struct {
	llm     ai.LLMService
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator creates a new Generator. A non-positive timeout selects the default.
func NewGenerator(llm ai.LLMService, generationTimeout time.Duration) *Generator {
	if generationTimeout <= 0 {
		generationTimeout = timeout.GenerationTimeout
	}
	return &Generator{
		llm:     llm,
		timeout: generationTimeout,
		logger:  slog.Default(),
	}
}

type chatResult struct {
	content string
	err     error
}

// Generate returns the reply text. It stops waiting once the timeout elapses,
// even if the underlying call ignores cancellation.
func (g *Generator) Generate(ctx context.Context, req *Request) (string, error) {
	prompt := BuildPrompt(req)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan chatResult, 1)
	go func() {
		content, err := g.llm.Chat(callCtx, []ai.Message{ai.UserMessage(prompt)})
		done <- chatResult{content: content, err: err}
	}()

	start := time.Now()
	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return "", ErrGenerationTimeout
			}
			g.logger.Error("persona generation failed",
				slog.String("username", req.Username),
				slog.Int("context_messages", len(req.Context)),
				slog.String("error", res.err.Error()))
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, res.err)
		}
		content := strings.TrimSpace(res.content)
		if content == "" {
			return "", fmt.Errorf("%w: empty output", ErrGenerationFailed)
		}
		g.logger.Debug("persona generated",
			slog.String("username", req.Username),
			slog.Duration("duration", time.Since(start)))
		return content, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ctx.Err())
		}
		g.logger.Warn("persona generation timed out",
			slog.String("username", req.Username),
			slog.Duration("timeout", g.timeout))
		return "", ErrGenerationTimeout
	}
}
