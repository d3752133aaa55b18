// Package api exposes the upload service and the image listing over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/picup/internal/domain/model"
)

// Uploader uploads images and builds their public links.
type Uploader interface {
	Upload(ctx context.Context, backend string, batch bool, imgs []*model.UploadImage) ([]model.UploadedImage, error)
	Link(backend string, img model.UploadedImage) string
}

// Listing reads the image directory listing.
type Listing interface {
	List(ctx context.Context, dir string) ([]model.UploadedImage, error)
	Dirs(ctx context.Context) ([]string, error)
}

// Server wires HTTP routes for the upload API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	uploadsHandler *UploadsHandler
	imagesHandler  *ImagesHandler
}

// NewServer creates a new API server with all handlers. defaultBackend is
// used when an upload request names none.
func NewServer(uploader Uploader, listing Listing, stats StatsProvider, defaultBackend string) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(stats),
		uploadsHandler: NewUploadsHandler(uploader, defaultBackend),
		imagesHandler:  NewImagesHandler(listing),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/uploads", MetricsMiddleware(s.uploadsHandler.HandlePostUploads, "uploads"))
	mux.HandleFunc("/images", MetricsMiddleware(s.imagesHandler.HandleGetImages, "images"))
	mux.HandleFunc("/dirs", MetricsMiddleware(s.imagesHandler.HandleGetDirs, "dirs"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
