package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wangpzi/apoolo-workers/internal/client"
	"github.com/wangpzi/apoolo-workers/internal/config"
	"github.com/wangpzi/apoolo-workers/internal/model"
)

// PokemonUpstream labels pokemon lookups in logs and metrics.
const PokemonUpstream = "pokeapi"

// PokemonService fetches pokemon documents from the REST upstream.
type PokemonService struct {
	client   *client.UpstreamClient
	template string
	policy   *model.CachePolicy
	logger   *slog.Logger
}

// NewPokemonService creates a PokemonService. Every lookup carries the
// configured edge cache directive.
func NewPokemonService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *PokemonService {
	return &PokemonService{
		client:   c,
		template: cfg.GraphQL.UpstreamURL,
		policy: &model.CachePolicy{
			TTL:             time.Duration(cfg.GraphQL.CacheTTLSeconds) * time.Second,
			CacheEverything: cfg.GraphQL.CacheAll(),
		},
		logger: logger.With("component", "pokemon_service"),
	}
}

// Pokemon returns the upstream JSON document for id with numbers kept as
// json.Number. Transport failures, non-2xx statuses and non-JSON bodies are
// returned as errors.
func (s *PokemonService) Pokemon(ctx context.Context, id string) (map[string]any, error) {
	resp, err := s.client.Do(&model.UpstreamRequest{
		Ctx:      ctx,
		Method:   http.MethodGet,
		URL:      s.lookupURL(id),
		Header:   http.Header{"Accept": {"application/json"}},
		Upstream: PokemonUpstream,
		Cache:    s.policy,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pokemon %q: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isSuccess(resp.StatusCode) {
		return nil, newUpstreamStatusError(PokemonUpstream, resp.StatusCode, resp.Body)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode pokemon %q: %w", id, err)
	}

	s.logger.Debug("pokemon fetched", "id", id, "cached", resp.Cached)
	return doc, nil
}

func (s *PokemonService) lookupURL(id string) string {
	return strings.ReplaceAll(s.template, config.IDPlaceholder, url.PathEscape(id))
}
