package handlers

import (
	"net/http"

	"adspack/internal/prompt"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	routes := map[string]string{}
	if a.Generator != nil {
		for _, q := range []prompt.Quality{prompt.HighQuality, prompt.Fast} {
			if route, ok := a.Generator.Route(q); ok {
				routes[string(q)] = route.Generator.Name()
			}
		}
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "providers": routes})
}
