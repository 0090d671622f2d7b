package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"adspack/internal/export"
	"adspack/internal/format"
	"adspack/internal/session"
)

func (a *App) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", "session id is required")
		return nil, false
	}
	sess, err := a.Sessions.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return nil, false
	}
	return sess, true
}

// SessionStatus reports the remaining download window.
func (a *App) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	a.json(w, http.StatusOK, sess.Status(a.now()))
}

// DownloadFormat exports one format, re-encoded to ?container=.
func (a *App) DownloadFormat(w http.ResponseWriter, r *http.Request) {
	key, err := format.ParseSlug(chi.URLParam(r, "key"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	container, err := export.ParseContainer(r.URL.Query().Get("container"))
	if err != nil {
		a.fail(w, err)
		return
	}
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	img, err := sess.Image(a.now(), key)
	if err != nil {
		a.fail(w, err)
		return
	}

	blob, err := a.Exporter.Single(key, img, container)
	if err != nil {
		a.Logger.Warn().Err(err).Str("format", key.String()).Str("container", string(container)).Msg("export: single re-encode failed")
		a.error(w, http.StatusUnprocessableEntity, "export_failed", "image could not be converted")
		return
	}
	if a.Metrics != nil {
		a.Metrics.RecordExport("single", string(container))
	}
	a.attachment(w, blob)
}

// DownloadArchive exports every available format as one zip. Formats that
// failed generation or re-encoding are left out.
func (a *App) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	container, err := export.ParseContainer(r.URL.Query().Get("container"))
	if err != nil {
		a.fail(w, err)
		return
	}
	sess, ok := a.loadSession(w, r)
	if !ok {
		return
	}
	images, err := sess.Images(a.now())
	if err != nil {
		a.fail(w, err)
		return
	}
	if len(images) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no generated images to export")
		return
	}

	archive, err := a.Exporter.All(images, sess.Requested, container)
	if errors.Is(err, export.ErrNothingToExport) {
		a.error(w, http.StatusUnprocessableEntity, "export_failed", "no image could be converted")
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	if len(archive.Omitted) > 0 {
		omitted := make([]string, len(archive.Omitted))
		for i, o := range archive.Omitted {
			omitted[i] = o.Format.String()
		}
		w.Header().Set("X-Export-Omitted", strings.Join(omitted, ","))
	}
	if a.Metrics != nil {
		a.Metrics.RecordExport("archive", string(container))
	}
	a.attachment(w, archive.Blob)
}

func (a *App) attachment(w http.ResponseWriter, blob export.Blob) {
	h := w.Header()
	h.Set("Content-Type", blob.MIMEType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blob.Filename))
	h.Set("Content-Length", fmt.Sprint(len(blob.Data)))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}
