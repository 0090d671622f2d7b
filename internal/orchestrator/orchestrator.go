// Package orchestrator fans one source image out to every selected format and
// joins the per-format outcomes into a partial result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"adspack/internal/domain"
	"adspack/internal/format"
	"adspack/internal/imagedata"
	"adspack/internal/infra"
	"adspack/internal/prompt"
	"adspack/internal/providers"
)

var (
	ErrMissingSource  = fmt.Errorf("%w: source image is required", domain.ErrInvalidRequest)
	ErrNoFormats      = fmt.Errorf("%w: at least one format must be selected", domain.ErrInvalidRequest)
	ErrUnknownFormat  = fmt.Errorf("%w: unsupported format", domain.ErrInvalidRequest)
	ErrUnknownQuality = fmt.Errorf("%w: unsupported mode", domain.ErrInvalidRequest)
)

// Route binds a quality mode to the generator and model that serve it.
type Route struct {
	Generator providers.Generator
	Model     string
}

// Routes is the quality → provider/model table.
type Routes map[prompt.Quality]Route

// Request is one generation request. Formats may contain duplicates; they are
// collapsed.
type Request struct {
	Source   imagedata.Image
	Formats  []format.Key
	Quality  prompt.Quality
	CTA      string
	CTAColor string
	Style    string
}

// Failure explains why a format is missing from a Result.
type Failure struct {
	Format format.Key `json:"format"`
	Reason string     `json:"reason"`
}

// Result holds the images that were produced, keyed by format, plus one
// Failure for every requested format that was not.
type Result struct {
	Images    map[format.Key]imagedata.Image
	Failures  []Failure
	Requested []format.Key
	Quality   prompt.Quality
	Provider  string
	Model     string
}

// Succeeded lists the produced formats in request order.
func (r Result) Succeeded() []format.Key {
	out := make([]format.Key, 0, len(r.Images))
	for _, k := range r.Requested {
		if _, ok := r.Images[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Outcome describes one finished per-format call.
type Outcome struct {
	Format   format.Key
	Provider string
	Model    string
	Err      error
	Duration time.Duration
}

// Options tune an Orchestrator.
type Options struct {
	// MaxConcurrent caps in-flight provider calls per request. Zero means one
	// per format.
	MaxConcurrent int
	// Timeout bounds the whole fan-out. Zero means no bound beyond the
	// providers' own HTTP timeouts.
	Timeout time.Duration
	Logger  *infra.Logger
	// OnOutcome is called once per format after its call finishes.
	OnOutcome func(Outcome)
}

// Orchestrator runs generation requests.
type Orchestrator struct {
	routes    Routes
	limit     int
	timeout   time.Duration
	logger    infra.Logger
	onOutcome func(Outcome)
}

func New(routes Routes, opts Options) *Orchestrator {
	logger := infra.DiscardLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		routes:    routes,
		limit:     opts.MaxConcurrent,
		timeout:   opts.Timeout,
		logger:    logger,
		onOutcome: opts.OnOutcome,
	}
}

// Route returns the route configured for q.
func (o *Orchestrator) Route(q prompt.Quality) (Route, bool) {
	r, ok := o.routes[q]
	return r, ok && r.Generator != nil
}

// Orchestrate validates req and runs one provider call per distinct format.
// Per-format failures never abort siblings and never surface as an error;
// only validation problems do. The calls are detached from ctx cancellation
// so a dropped client does not cut in-flight generations short.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (Result, error) {
	if len(req.Source.Data) == 0 {
		return Result{}, ErrMissingSource
	}
	keys, err := distinct(req.Formats)
	if err != nil {
		return Result{}, err
	}
	quality := req.Quality
	if quality == "" {
		quality = prompt.HighQuality
	}
	route, ok := o.Route(quality)
	if !ok {
		return Result{}, fmt.Errorf("%w %q", ErrUnknownQuality, quality)
	}

	ctx = context.WithoutCancel(ctx)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	opts := prompt.Options{Quality: quality, CTA: req.CTA, CTAColor: req.CTAColor, Style: req.Style}
	outcomes := make([]outcome, len(keys))

	var g errgroup.Group
	limit := o.limit
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}
	g.SetLimit(limit)
	for i, key := range keys {
		g.Go(func() error {
			outcomes[i] = o.generateOne(ctx, route, key, req.Source, opts)
			return nil
		})
	}
	_ = g.Wait()

	result := Result{
		Images:    make(map[format.Key]imagedata.Image, len(keys)),
		Requested: keys,
		Quality:   quality,
		Provider:  route.Generator.Name(),
		Model:     route.Model,
	}
	for i, key := range keys {
		if outcomes[i].err != nil {
			result.Failures = append(result.Failures, Failure{Format: key, Reason: providers.Reason(outcomes[i].err)})
			continue
		}
		result.Images[key] = outcomes[i].image
	}

	o.logger.Info().
		Str("provider", result.Provider).
		Str("mode", string(quality)).
		Int("requested", len(keys)).
		Int("succeeded", len(result.Images)).
		Int("failed", len(result.Failures)).
		Msg("orchestrator: generation finished")

	return result, nil
}

type outcome struct {
	image imagedata.Image
	err   error
}

func (o *Orchestrator) generateOne(ctx context.Context, route Route, key format.Key, source imagedata.Image, opts prompt.Options) (out outcome) {
	started := time.Now()
	provider := route.Generator.Name()
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("provider panic: %v", r)}
		}
		if out.err != nil {
			o.logFailure(provider, key, out.err)
		}
		if o.onOutcome != nil {
			o.onOutcome(Outcome{Format: key, Provider: provider, Model: route.Model, Err: out.err, Duration: time.Since(started)})
		}
	}()

	spec := format.Lookup(key)
	img, err := route.Generator.Generate(ctx, providers.Request{
		Source: source,
		Prompt: prompt.Build(key, opts),
		Target: spec,
		Model:  route.Model,
	})
	if err == nil && len(img.Data) == 0 {
		err = providers.Malformed(provider, nil)
	}
	return outcome{image: img, err: err}
}

func (o *Orchestrator) logFailure(provider string, key format.Key, err error) {
	event := o.logger.Warn().
		Err(err).
		Str("format", key.String()).
		Str("provider", provider).
		Str("kind", providers.KindOf(err).String())
	var pe *providers.Error
	if errors.As(err, &pe) {
		event = event.Int("status", pe.Status).Int("attempts", pe.Attempts)
	}
	event.Msg("orchestrator: format generation failed")
}

func distinct(keys []format.Key) ([]format.Key, error) {
	if len(keys) == 0 {
		return nil, ErrNoFormats
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = string(k)
	}
	out, err := format.ParseSet(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	}
	return out, nil
}
