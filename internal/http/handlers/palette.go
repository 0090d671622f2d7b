package handlers

import (
	"errors"
	"net/http"

	"adspack/internal/domain/jsoncfg"
	"adspack/internal/imagedata"
	"adspack/internal/palette"
)

// Palette suggests a CTA color that contrasts with the image's dominant color.
func (a *App) Palette(w http.ResponseWriter, r *http.Request) {
	var req jsoncfg.PaletteRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	img, err := imagedata.DecodeDataURI(req.Image)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "image is not a valid image: "+err.Error())
		return
	}
	res, err := palette.Dominant(img)
	if err != nil {
		if errors.Is(err, palette.ErrNoDominantColor) {
			a.error(w, http.StatusUnprocessableEntity, "no_dominant_color", "image has no dominant color")
			return
		}
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
