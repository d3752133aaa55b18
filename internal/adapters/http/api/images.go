package api

import (
	"errors"
	"net/http"

	"github.com/okian/picup/internal/adapters/repository"
)

// ImagesHandler serves the directory listing.
type ImagesHandler struct {
	listing Listing
}

// NewImagesHandler creates a new images handler.
func NewImagesHandler(listing Listing) *ImagesHandler {
	return &ImagesHandler{listing: listing}
}

// HandleGetImages handles GET /images?dir=D requests. An empty dir is the root.
func (h *ImagesHandler) HandleGetImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	dir := repository.NormalizeDir(r.URL.Query().Get("dir"))
	imgs, err := h.listing.List(r.Context(), dir)
	switch {
	case errors.Is(err, repository.ErrDirNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dir": dir, "images": imgs})
}

// HandleGetDirs handles GET /dirs requests.
func (h *ImagesHandler) HandleGetDirs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	dirs, err := h.listing.Dirs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dirs": dirs})
}
