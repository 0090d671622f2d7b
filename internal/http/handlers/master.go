package handlers

import (
	"context"
	"errors"
	"net/http"

	"adspack/internal/domain"
	"adspack/internal/domain/jsoncfg"
	"adspack/internal/providers"
)

// GenerateMaster creates a square source image from {prompt}.
func (a *App) GenerateMaster(w http.ResponseWriter, r *http.Request) {
	var req jsoncfg.MasterRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if a.Master == nil {
		a.fail(w, domain.ErrProviderUnavailable)
		return
	}

	img, err := a.Master.GenerateMaster(context.WithoutCancel(r.Context()), req.Prompt)
	if err != nil {
		a.Logger.Warn().Err(err).Str("kind", providers.KindOf(err).String()).Msg("master: generation failed")
		switch {
		case errors.Is(err, domain.ErrProviderUnavailable), providers.KindOf(err) == providers.KindUnavailable:
			a.error(w, http.StatusServiceUnavailable, "provider_unavailable", providers.Reason(err))
		case providers.KindOf(err) == providers.KindMalformed:
			a.error(w, http.StatusBadGateway, "no_image", "no image generated")
		default:
			a.error(w, http.StatusBadGateway, "provider_failure", providers.Reason(err))
		}
		return
	}
	a.json(w, http.StatusOK, map[string]string{"image": img.DataURI()})
}
