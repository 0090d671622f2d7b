package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"adspack/internal/domain"
	"adspack/internal/export"
	"adspack/internal/history"
	"adspack/internal/imagedata"
	"adspack/internal/infra"
	"adspack/internal/metrics"
	"adspack/internal/orchestrator"
	"adspack/internal/prompt"
	"adspack/internal/session"
)

// FormatGenerator runs fan-out generations.
type FormatGenerator interface {
	Route(q prompt.Quality) (orchestrator.Route, bool)
	Orchestrate(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// MasterGenerator creates a source image from a text description.
type MasterGenerator interface {
	GenerateMaster(ctx context.Context, description string) (imagedata.Image, error)
}

// App carries the dependencies shared by every handler. History and Metrics
// are optional.
type App struct {
	Config    *infra.Config
	Logger    zerolog.Logger
	Generator FormatGenerator
	Master    MasterGenerator
	Sessions  session.Store
	History   history.Sink
	Exporter  *export.Assembler
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

const clientIDHeader = "X-Client-ID"

// expiredMessage is shown when a download is attempted after the window
// closed.
const expiredMessage = "These images have expired. Generate them again to download."

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: message, Code: code})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrSessionExpired):
		a.error(w, http.StatusGone, "session_expired", expiredMessage)
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, domain.ErrProviderUnavailable):
		a.error(w, http.StatusServiceUnavailable, "provider_unavailable", "image provider is not configured")
	default:
		a.Logger.Error().Err(err).Msg("handler: unexpected error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) maxBodyBytes() int64 {
	mb := 25
	if a.Config != nil && a.Config.MaxUploadMB > 0 {
		mb = a.Config.MaxUploadMB
	}
	// base64 inflates the payload by a third
	return int64(mb) * (1 << 20) * 4 / 3
}

// decode reads a JSON body into dst and writes the error response itself.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, a.maxBodyBytes())
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body is too large")
		case errors.Is(err, io.EOF):
			a.error(w, http.StatusBadRequest, "invalid_request", "request body is required")
		default:
			a.error(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		}
		return false
	}
	return true
}

func clientID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(clientIDHeader))
}
