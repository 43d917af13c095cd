package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/wangpzi/apoolo-workers/internal/client"
	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/model"
)

// ErrAPIKeyNotConfigured is returned when neither the config nor the
// environment provides a chat API key.
var ErrAPIKeyNotConfigured = errors.New("API key not configured")

var errTrailingData = errors.New("unexpected data after JSON value")

// ChatUpstream labels chat completion calls in logs and metrics.
const ChatUpstream = "chat"

const (
	completionsPath = "/v1/chat/completions"
	temperature     = 0.7
	maxTokens       = 1000
)

// ChatService relays a prompt to the chat completion API.
type ChatService struct {
	client   *client.UpstreamClient
	cfg      *config.ChatConfig
	endpoint string
	logger   *slog.Logger
	getenv   func(string) string
}

// NewChatService creates a ChatService.
func NewChatService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*ChatService, error) {
	endpoint, err := url.JoinPath(cfg.Chat.BaseURL, completionsPath)
	if err != nil {
		return nil, fmt.Errorf("parse chat base_url: %w", err)
	}

	return &ChatService{
		client:   c,
		cfg:      &cfg.Chat,
		endpoint: endpoint,
		logger:   logger.With("component", "chat_service"),
		getenv:   os.Getenv,
	}, nil
}

// resolveAPIKey returns the configured key, falling back to the environment
// variable named by chat.api_key_env. It is evaluated per request so a key
// exported after startup is picked up.
func (s *ChatService) resolveAPIKey() string {
	if s.cfg.APIKey != "" {
		return s.cfg.APIKey
	}
	if s.cfg.APIKeyEnv == "" {
		return ""
	}
	return s.getenv(s.cfg.APIKeyEnv)
}

// KeyConfigured reports whether a chat API key is currently available.
func (s *ChatService) KeyConfigured() bool {
	return s.resolveAPIKey() != ""
}

// Reply decodes a {"prompt": ...} body, sends it to the completion API and
// returns the first choice's message content.
//
// The credential is checked before the body is read; without one no
// upstream call is made and ErrAPIKeyNotConfigured is returned.
func (s *ChatService) Reply(ctx context.Context, body io.Reader) (string, error) {
	apiKey := s.resolveAPIKey()
	if apiKey == "" {
		return "", ErrAPIKeyNotConfigured
	}

	prompt, err := decodePrompt(body)
	if err != nil {
		return "", fmt.Errorf("parse chat request: %w", err)
	}

	payload, err := json.Marshal(s.buildRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	s.logger.Debug("sending completion request", "model", s.cfg.Model, "prompt_bytes", len(prompt))

	resp, err := s.client.Do(&model.UpstreamRequest{
		Ctx:    ctx,
		Method: http.MethodPost,
		URL:    s.endpoint,
		Header: http.Header{
			"Content-Type":  {"application/json"},
			"Authorization": {"Bearer " + apiKey},
		},
		Body:     bytes.NewReader(payload),
		Upstream: ChatUpstream,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return "", newUpstreamStatusError(ChatUpstream, resp.StatusCode, resp.Body)
	}

	var completion model.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// decodePrompt reads exactly one JSON object carrying a string prompt.
func decodePrompt(body io.Reader) (string, error) {
	dec := json.NewDecoder(body)

	var req model.ChatPrompt
	if err := dec.Decode(&req); err != nil {
		return "", err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return "", errTrailingData
	}
	if req.Prompt == nil {
		return "", errors.New("prompt is required")
	}
	return *req.Prompt, nil
}

func (s *ChatService) buildRequest(prompt string) *model.ChatCompletionRequest {
	return &model.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []model.ChatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
