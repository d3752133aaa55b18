// Package model contains domain models passed between layers.
package model

import (
	"strings"

	"github.com/google/uuid"
)

// ImageType is the type tag carried by every uploaded image record.
const ImageType = "image"

// Filename holds the name the image was picked with and the name it is
// uploaded under.
type Filename struct {
	Original string `json:"original"`
	Final    string `json:"final"`
}

// Base64 holds the data URL variants produced for an image. Compress and
// Watermark are optional derivatives of Original.
type Base64 struct {
	Original  string `json:"originalBase64"`
	Watermark string `json:"watermarkBase64,omitempty"`
	Compress  string `json:"compressBase64,omitempty"`
}

// UploadStatus tracks progress of a single image.
type UploadStatus struct {
	Progress  int  `json:"progress"`
	Uploading bool `json:"uploading"`
}

// ReUploadInfo marks an image that replaces an already uploaded one.
type ReUploadInfo struct {
	IsReUpload bool   `json:"isReUpload"`
	Dir        string `json:"dir"`
	Path       string `json:"path"`
}

// UploadImage is an image waiting to be uploaded, plus its outcome.
type UploadImage struct {
	UUID         string         `json:"uuid"`
	Filename     Filename       `json:"filename"`
	Base64       Base64         `json:"base64"`
	UploadStatus UploadStatus   `json:"uploadStatus"`
	ReUploadInfo *ReUploadInfo  `json:"reUploadInfo,omitempty"`
	UploadedImg  *UploadedImage `json:"uploadedImg,omitempty"`
}

// UploadedImage is the record kept in the directory listing after a
// successful upload.
type UploadedImage struct {
	Checked  bool   `json:"checked"`
	Type     string `json:"type"`
	UUID     string `json:"uuid"`
	Dir      string `json:"dir"`
	Name     string `json:"name"`
	Sha      string `json:"sha"`
	Path     string `json:"path"`
	Deleting bool   `json:"deleting"`
	Size     int64  `json:"size"`
	Deployed bool   `json:"deployed"`
}

// RepoConfig is the user's GitHub repository selection.
type RepoConfig struct {
	Owner       string
	Repo        string
	Branch      string
	Email       string
	SelectedDir string
}

// AlistConfig addresses an Alist server and the folder images go to.
type AlistConfig struct {
	Server   string
	Username string
	Password string
	Path     string
}

// NewUploadImage returns an image with a fresh UUID whose original and
// final name are both name.
func NewUploadImage(name, dataURL string) *UploadImage {
	return &UploadImage{
		UUID:     uuid.NewString(),
		Filename: Filename{Original: name, Final: name},
		Base64:   Base64{Original: dataURL},
	}
}

// Content returns the preferred data URL: compressed, then watermarked,
// then original.
func (img *UploadImage) Content() string {
	switch {
	case img.Base64.Compress != "":
		return img.Base64.Compress
	case img.Base64.Watermark != "":
		return img.Base64.Watermark
	default:
		return img.Base64.Original
	}
}

// Payload returns the base64 part of Content, i.e. everything after the
// data URL header.
func (img *UploadImage) Payload() string {
	content := img.Content()
	if _, payload, ok := strings.Cut(content, ","); ok {
		return payload
	}
	return content
}

// IsReUpload reports whether the image replaces an existing one.
func (img *UploadImage) IsReUpload() bool {
	return img.ReUploadInfo != nil && img.ReUploadInfo.IsReUpload
}
