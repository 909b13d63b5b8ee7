package v1

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/plugin/ai"
	"github.com/hrygo/tensai/plugin/ai/persona"
	aierrors "github.com/hrygo/tensai/server/internal/errors"
	"github.com/hrygo/tensai/server/internal/observability"
	"github.com/hrygo/tensai/server/retrieval"
	"github.com/hrygo/tensai/store"
)

// DefaultBotName answers messages that mention nobody.
const DefaultBotName = "TENSAI BOT"

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Message           string   `json:"message"`
	MentionedUsername string   `json:"mentionedUsername,omitempty"`
	MatchThreshold    *float64 `json:"matchThreshold,omitempty"`
	Environment       string   `json:"environment,omitempty"`
	// EmbeddingModel is "small" or "large". Empty uses the configured model.
	EmbeddingModel string `json:"embeddingModel,omitempty"`
}

// ChatResponse is the reply attributed to a user.
type ChatResponse struct {
	Content   string `json:"content"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Chat answers a message in the voice of the mentioned user.
// POST /api/v1/chat
func (s *APIV1Service) Chat(c echo.Context) error {
	rc := s.newRequestContext(c, "chat")

	resp, err := s.chat(c, rc)
	s.record(rc, err != nil)
	if err != nil {
		return s.respondError(c, rc, err)
	}
	rc.Info(c.Request().Context(), "chat completed", slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) chat(c echo.Context, rc *observability.RequestContext) (*ChatResponse, error) {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return nil, aierrors.Wrap(err, aierrors.ErrCodeInvalidArgument, "Invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, aierrors.InvalidArgument("message is required")
	}
	if req.Environment != "" {
		if err := profile.ValidateEnvironment(req.Environment); err != nil {
			return nil, aierrors.InvalidEnvironment(req.Environment)
		}
	}

	username := strings.TrimSpace(req.MentionedUsername)
	if username == "" {
		return &ChatResponse{Content: "Echo: " + req.Message, Username: DefaultBotName}, nil
	}
	rc.Username = username
	rc.Info(ctx, "chat request",
		slog.Int(observability.LogFieldMessageLen, len(req.Message)),
		slog.String("message", observability.Truncate(req.Message)))

	if s.Retriever == nil || s.Generator == nil {
		return nil, aierrors.ServiceUnavailable("AI is not configured")
	}

	user, err := s.resolveUser(c, username)
	if err != nil {
		return nil, err
	}

	opts := &retrieval.Options{
		Query:     req.Message,
		AuthorID:  user.ID,
		RequestID: rc.RequestID,
		Logger:    rc.Logger,
	}
	if req.MatchThreshold != nil {
		opts.Threshold = *req.MatchThreshold
	}
	opts.Model = store.EmbeddingModel(req.EmbeddingModel)
	if opts.Model == "" {
		opts.Model = store.EmbeddingModel(s.Profile.RetrievalModel)
	}
	items, err := s.Retriever.Retrieve(ctx, opts)
	if err != nil {
		return nil, classifyRetrievalError(err)
	}
	if len(items) == 0 {
		return nil, aierrors.NotFound(fmt.Sprintf("No messages found for user %s", username))
	}

	exemplars := make([]string, len(items))
	for i, item := range items {
		exemplars[i] = item.Content
	}
	content, err := s.Generator.Generate(ctx, &persona.Request{
		Message:  req.Message,
		Username: user.Username,
		Context:  exemplars,
	})
	if err != nil {
		if errors.Is(err, persona.ErrGenerationTimeout) {
			return nil, aierrors.Timeout("Response generation timed out", err)
		}
		return nil, aierrors.Wrap(err, aierrors.ErrCodeGenerationFailed, "Failed to generate response")
	}

	return &ChatResponse{Content: content, Username: user.Username, AvatarURL: user.AvatarURL}, nil
}

// resolveUser reads through the user cache.
func (s *APIV1Service) resolveUser(c echo.Context, username string) (*store.User, error) {
	if s.Caches != nil {
		if user, ok := s.Caches.Users.Get(username); ok {
			return user, nil
		}
	}

	user, err := s.Users.GetUserByName(c.Request().Context(), username)
	if err != nil {
		return nil, aierrors.Wrap(err, aierrors.ErrCodeStoreFailed, "Failed to load user").WithContext("username", username)
	}
	if user == nil {
		return nil, aierrors.NotFound(fmt.Sprintf("User %s not found", username))
	}
	if s.Caches != nil {
		s.Caches.Users.Set(username, user)
	}
	return user, nil
}

func classifyRetrievalError(err error) error {
	var embeddingErr *ai.EmbeddingError
	switch {
	case errors.Is(err, retrieval.ErrInvalidQuery), errors.Is(err, retrieval.ErrInvalidThreshold), errors.Is(err, retrieval.ErrInvalidModel):
		return aierrors.Wrap(err, aierrors.ErrCodeInvalidArgument, "Invalid retrieval parameters")
	case errors.As(err, &embeddingErr):
		return aierrors.Wrap(err, aierrors.ErrCodeEmbeddingFailed, "Failed to embed message")
	default:
		return aierrors.Wrap(err, aierrors.ErrCodeStoreFailed, "Failed to retrieve context")
	}
}
