package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"adspack/internal/domain"
	"adspack/internal/domain/jsoncfg"
	"adspack/internal/format"
	"adspack/internal/history"
	"adspack/internal/imagedata"
	"adspack/internal/orchestrator"
	"adspack/internal/session"
)

type formatsResponse struct {
	Formats    map[string]string      `json:"formats"`
	Failed     []orchestrator.Failure `json:"failed"`
	SessionID  string                 `json:"session_id"`
	ExpiresAt  time.Time              `json:"expires_at"`
	TTLSeconds int                    `json:"ttl_seconds"`
}

// Catalog lists the supported formats.
func (a *App) Catalog(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"formats": format.All()})
}

// GenerateFormats reframes the master image into every selected format. Per
// format failures are reported in "failed" and never fail the request.
func (a *App) GenerateFormats(w http.ResponseWriter, r *http.Request) {
	var req jsoncfg.FormatsRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	quality := req.Quality()
	if a.Generator == nil {
		a.fail(w, domain.ErrProviderUnavailable)
		return
	}
	if _, ok := a.Generator.Route(quality); !ok {
		a.fail(w, domain.ErrProviderUnavailable)
		return
	}
	source, err := imagedata.DecodeDataURI(req.MasterImage)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "masterImage is not a valid image: "+err.Error())
		return
	}

	res, err := a.Generator.Orchestrate(r.Context(), orchestrator.Request{
		Source:   source,
		Formats:  req.Formats(),
		Quality:  quality,
		CTA:      req.CTA,
		CTAColor: req.CTAColor,
		Style:    req.AdsStyle,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	if a.Metrics != nil {
		a.Metrics.RecordGeneration(res)
	}

	now := a.now()
	sess := session.New(uuid.NewString(), res, now)
	// stored even if the client has already gone away
	storeCtx := context.WithoutCancel(r.Context())
	if err := a.Sessions.Put(storeCtx, sess); err != nil {
		a.fail(w, err)
		return
	}
	if a.Metrics != nil {
		a.Metrics.SessionsCreated.Inc()
	}
	a.appendHistory(storeCtx, clientID(r), sess.ID, res, now)

	out := formatsResponse{
		Formats:    make(map[string]string, len(res.Images)),
		Failed:     res.Failures,
		SessionID:  sess.ID,
		ExpiresAt:  sess.ExpiresAt().UTC(),
		TTLSeconds: int(sess.TTL / time.Second),
	}
	if out.Failed == nil {
		out.Failed = []orchestrator.Failure{}
	}
	for key, img := range res.Images {
		out.Formats[string(key)] = img.DataURI()
	}
	a.json(w, http.StatusOK, out)
}

func (a *App) appendHistory(ctx context.Context, client, sessionID string, res orchestrator.Result, now time.Time) {
	if a.History == nil || client == "" {
		return
	}
	if err := a.History.Append(ctx, client, history.NewEntry(sessionID, res, now)); err != nil {
		if !errors.Is(err, history.ErrClientRequired) {
			a.Logger.Warn().Err(err).Str("session_id", sessionID).Msg("history: append failed")
		}
		if a.Metrics != nil {
			a.Metrics.HistoryWriteFails.Inc()
		}
	}
}
