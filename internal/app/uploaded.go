package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/okian/picup/internal/adapters/repository"
	"github.com/okian/picup/internal/domain/model"
)

type uploadResult struct {
	name string
	sha  string
	path string
	size int64
}

// uploadedHandle marks img as done and records it in the listing. The
// directory is the repository's selected dir, else the Alist folder, else
// the root; a re-upload keeps its original directory.
func (s *Service) uploadedHandle(ctx context.Context, res uploadResult, img *model.UploadImage, cfg *model.RepoConfig) error {
	dir := repository.RootDir
	switch {
	case cfg != nil && cfg.SelectedDir != "":
		dir = cfg.SelectedDir
	case s.alistCfg.Path != "":
		dir = s.alistCfg.Path
	}
	if img.IsReUpload() {
		dir = img.ReUploadInfo.Dir
	}
	dir = repository.NormalizeDir(dir)

	img.UploadStatus.Progress = 100
	img.UploadStatus.Uploading = false

	rec := model.UploadedImage{
		Checked:  false,
		Type:     model.ImageType,
		UUID:     img.UUID,
		Dir:      dir,
		Name:     res.name,
		Sha:      res.sha,
		Path:     res.path,
		Deleting: false,
		Size:     res.size,
		Deployed: true,
	}
	img.UploadedImg = &rec

	if err := s.store.AddDir(ctx, dir); err != nil {
		return fmt.Errorf("record dir %s: %w", dir, err)
	}
	if err := s.store.AddImage(ctx, rec); err != nil {
		return fmt.Errorf("record image %s: %w", rec.Name, err)
	}
	return nil
}

// Link returns the public URL of an uploaded image.
func (s *Service) Link(backend string, img model.UploadedImage) string {
	switch backend {
	case BackendGitHub:
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s",
			s.repo.Owner, s.repo.Repo, s.repo.Branch, escapeSegments(img.Path))
	case BackendAlist:
		if s.alist == nil {
			return ""
		}
		p := img.Path
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		return strings.TrimRight(s.alist.Server(), "/") + "/d" + escapeSegments(p)
	default:
		return ""
	}
}

func escapeSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
