package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"adspack/internal/domain"
	"adspack/internal/http/handlers"
	"adspack/internal/infra"
	"adspack/internal/infra/credentials"
	"adspack/internal/metrics"
	"adspack/internal/orchestrator"
	"adspack/internal/prompt"
	"adspack/internal/providers"
	"adspack/internal/providers/genai"
	"adspack/internal/providers/openai"
	"adspack/internal/providers/synthetic"
)

// providerSet is the resolved provider wiring for one process.
type providerSet struct {
	routes orchestrator.Routes
	master handlers.MasterGenerator
}

type providerBuilder struct {
	cfg     *infra.Config
	logger  infra.Logger
	metrics *metrics.Metrics
	http    *http.Client
	keys    map[string]string
	built   map[string]providers.Generator
}

// buildProviders resolves API keys (environment first, then the credentials
// table) and builds the quality → provider routes. Providers without a key
// are left out, or replaced by the synthetic generator in development.
func buildProviders(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger, m *metrics.Metrics) (providerSet, error) {
	b := &providerBuilder{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		http:    &http.Client{Timeout: cfg.ProviderTimeout},
		keys:    map[string]string{},
		built:   map[string]providers.Generator{},
	}
	explicit := map[string]string{
		credentials.ProviderOpenAI: cfg.OpenAIAPIKey,
		credentials.ProviderGemini: cfg.GeminiAPIKey,
	}
	for name, env := range explicit {
		key, err := creds.Resolve(ctx, name, env)
		if err != nil {
			logger.Warn().Err(err).Str("provider", name).Msg("api: failed to load stored api key")
		}
		b.keys[name] = key
	}

	set := providerSet{routes: orchestrator.Routes{}}
	for _, r := range []struct {
		quality  prompt.Quality
		provider string
		model    string
	}{
		{prompt.HighQuality, cfg.HighQualityProvider, ""},
		{prompt.Fast, cfg.FastProvider, cfg.FastModel},
	} {
		gen, err := b.generator(r.provider)
		if err != nil {
			return providerSet{}, err
		}
		if gen == nil {
			logger.Warn().Str("mode", string(r.quality)).Str("provider", r.provider).Msg("api: provider key missing, mode disabled")
			continue
		}
		set.routes[r.quality] = orchestrator.Route{Generator: gen, Model: b.model(gen.Name(), r.model)}
	}

	master, err := b.master()
	if err != nil {
		return providerSet{}, err
	}
	set.master = master
	return set, nil
}

func (b *providerBuilder) model(provider, override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	switch provider {
	case openai.ProviderName:
		return b.cfg.OpenAIModel
	case genai.ProviderName:
		return b.cfg.GeminiImageModel
	}
	return ""
}

// generator returns the decorated client for name, sharing one instance (and
// so one circuit breaker) across routes. Nil means not configured.
func (b *providerBuilder) generator(name string) (providers.Generator, error) {
	if g, ok := b.built[name]; ok {
		return g, nil
	}

	var client providers.Generator
	key := b.keys[name]
	switch {
	case key != "" && name == credentials.ProviderOpenAI:
		c, err := openai.NewClient(openai.Options{
			APIKey:        key,
			BaseURL:       b.cfg.OpenAIBaseURL,
			Model:         b.cfg.OpenAIModel,
			Organization:  b.cfg.OpenAIOrg,
			HTTPClient:    b.http,
			Logger:        &b.logger,
			MaxImageBytes: b.maxImageBytes(),
		})
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		client = c
	case key != "" && name == credentials.ProviderGemini:
		c, err := b.gemini(key)
		if err != nil {
			return nil, err
		}
		client = c
	case b.cfg.AllowsSyntheticProviders():
		b.logger.Warn().Str("provider", name).Msg("api: api key missing, using synthetic generator")
		client = synthetic.New()
	default:
		b.built[name] = nil
		return nil, nil
	}

	retrying := providers.WithRetry(client, providers.RetryPolicy{
		MaxAttempts: b.cfg.RetryMaxAttempts,
		Step:        b.cfg.RetryStep,
	})
	retrying.Notify = func(req providers.Request, err error, delay time.Duration) {
		b.metrics.RecordRetry(client.Name())
		b.logger.Warn().Err(err).
			Str("provider", client.Name()).
			Str("format", req.Target.Key.String()).
			Dur("delay", delay).
			Msg("provider: transient failure, retrying")
	}
	gen := providers.WithBreaker(retrying, providers.BreakerSettings{
		FailureThreshold: uint32(b.cfg.BreakerFailureThreshold),
		OnStateChange: func(provider string, from, to gobreaker.State) {
			b.metrics.SetBreakerState(provider, from, to)
			b.logger.Warn().Str("provider", provider).Str("from", from.String()).Str("to", to.String()).Msg("provider: circuit breaker state changed")
		},
	})
	b.built[name] = gen
	return gen, nil
}

func (b *providerBuilder) gemini(key string) (*genai.Client, error) {
	c, err := genai.NewClient(genai.Options{
		APIKey:        key,
		BaseURL:       b.cfg.GeminiBaseURL,
		Model:         b.cfg.GeminiImageModel,
		MasterModel:   b.cfg.GeminiMasterModel,
		HTTPClient:    b.http,
		Logger:        &b.logger,
		MaxImageBytes: b.maxImageBytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return c, nil
}

// master picks the text-to-image backend: Gemini when keyed, synthetic in
// development, otherwise none.
func (b *providerBuilder) master() (handlers.MasterGenerator, error) {
	if key := b.keys[credentials.ProviderGemini]; key != "" {
		return b.gemini(key)
	}
	if b.cfg.AllowsSyntheticProviders() {
		return synthetic.New(), nil
	}
	b.logger.Warn().Err(domain.ErrProviderUnavailable).Msg("api: master image generation disabled")
	return nil, nil
}

// maxImageBytes bounds provider downloads by the same limit applied to uploads.
func (b *providerBuilder) maxImageBytes() int64 {
	return int64(b.cfg.MaxUploadMB) << 20
}
