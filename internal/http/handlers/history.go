package handlers

import (
	"net/http"

	"adspack/internal/history"
)

// ListHistory returns the caller's recent generations, newest first.
func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	client := clientID(r)
	if client == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", clientIDHeader+" header is required")
		return
	}
	entries := []history.Entry{}
	if a.History != nil {
		list, err := a.History.List(r.Context(), client)
		if err != nil {
			a.fail(w, err)
			return
		}
		entries = list
	}
	a.json(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *App) ClearHistory(w http.ResponseWriter, r *http.Request) {
	client := clientID(r)
	if client == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", clientIDHeader+" header is required")
		return
	}
	if a.History != nil {
		if err := a.History.Clear(r.Context(), client); err != nil {
			a.fail(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
