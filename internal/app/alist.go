package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/picup/internal/domain/dataurl"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/pkg/metrics"
)

// alistDir turns the configured folder into a "/"-terminated prefix.
func alistDir(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// UploadImageToAlist stores img under the configured Alist folder.
func (s *Service) UploadImageToAlist(ctx context.Context, img *model.UploadImage) error {
	if s.alist == nil {
		return fmt.Errorf("%w: %s", ErrBackendNotConfigured, BackendAlist)
	}

	dir := alistDir(s.alistCfg.Path)
	file, err := dataurl.ToFile(ctx, s.httpClient, img.Content(), img.Filename.Final, "")
	if err != nil {
		return fmt.Errorf("read %s: %w", img.Filename.Final, err)
	}

	target := dir + file.Name
	img.UploadStatus.Uploading = true
	err = s.alist.Put(ctx, target, file)
	img.UploadStatus.Uploading = false
	if err != nil {
		return fmt.Errorf("upload %s: %w", img.Filename.Final, err)
	}

	metrics.RecordUploadBytes(BackendAlist, file.Size())
	return s.uploadedHandle(ctx, uploadResult{name: file.Name, path: target, size: file.Size()}, img, nil)
}
