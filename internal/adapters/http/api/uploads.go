package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/picup/internal/app"
	"github.com/okian/picup/internal/domain/model"
)

// maxUploadBody bounds a POST /uploads body; images travel base64 encoded.
const maxUploadBody = 64 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type uploadRequest struct {
	Backend string         `json:"backend" validate:"omitempty,oneof=github alist"`
	Batch   bool           `json:"batch"`
	Images  []imageRequest `json:"images" validate:"required,min=1,dive"`
}

type imageRequest struct {
	Name     string           `json:"name" validate:"required,excludesall=/\\"`
	Data     string           `json:"data" validate:"required"`
	ReUpload *reUploadRequest `json:"reupload,omitempty"`
}

type reUploadRequest struct {
	Dir  string `json:"dir" validate:"required"`
	Path string `json:"path" validate:"required"`
}

type uploadedResponse struct {
	model.UploadedImage
	Link string `json:"link"`
}

type uploadResponse struct {
	Backend string             `json:"backend"`
	Images  []uploadedResponse `json:"images"`
}

type uploadErrorResponse struct {
	errorResponse
	Images []uploadedResponse `json:"images"`
}

// UploadsHandler handles upload submissions.
type UploadsHandler struct {
	uploader       Uploader
	defaultBackend string
}

// NewUploadsHandler creates a new uploads handler.
func NewUploadsHandler(uploader Uploader, defaultBackend string) *UploadsHandler {
	return &UploadsHandler{uploader: uploader, defaultBackend: defaultBackend}
}

// HandlePostUploads handles POST /uploads requests.
func (h *UploadsHandler) HandlePostUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	backend := req.Backend
	if backend == "" {
		backend = h.defaultBackend
	}

	imgs := make([]*model.UploadImage, len(req.Images))
	for i, in := range req.Images {
		img := model.NewUploadImage(in.Name, in.Data)
		if in.ReUpload != nil {
			img.ReUploadInfo = &model.ReUploadInfo{IsReUpload: true, Dir: in.ReUpload.Dir, Path: in.ReUpload.Path}
		}
		imgs[i] = img
	}

	done, err := h.uploader.Upload(r.Context(), backend, req.Batch, imgs)
	out := make([]uploadedResponse, len(done))
	for i, u := range done {
		out[i] = uploadedResponse{UploadedImage: u, Link: h.uploader.Link(backend, u)}
	}

	if err != nil {
		status, code := uploadStatus(err)
		writeJSON(w, status, uploadErrorResponse{
			errorResponse: errorResponse{Code: code, Message: fmt.Errorf("%w: %w", ErrUpload, err).Error()},
			Images:        out,
		})
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Backend: backend, Images: out})
}

func uploadStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnknownBackend), errors.Is(err, service.ErrBackendNotConfigured):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrDuplicatePath):
		return http.StatusConflict, "duplicate_path"
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusBadGateway, "upload_failed"
	}
}
