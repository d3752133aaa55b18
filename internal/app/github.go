package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/okian/picup/internal/adapters/github"
	"github.com/okian/picup/internal/adapters/repository"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/internal/i18n"
	"github.com/okian/picup/pkg/logger"
	"github.com/okian/picup/pkg/metrics"
)

const (
	singleCommitMessage = "Upload %s via picup"
	batchCommitMessage  = "Upload %d images via picup"
)

// UploadURL returns the contents API path img is written to in cfg's repo.
func (s *Service) UploadURL(cfg model.RepoConfig, img *model.UploadImage) string {
	return fmt.Sprintf("/repos/%s/%s/contents/%s", cfg.Owner, cfg.Repo, repoFilePath(cfg, img))
}

// repoFilePath is the file path of img inside the repository. A re-upload
// keeps the path of the image it replaces.
func repoFilePath(cfg model.RepoConfig, img *model.UploadImage) string {
	if img.IsReUpload() {
		return img.ReUploadInfo.Path
	}
	return dirPrefix(cfg.SelectedDir) + img.Filename.Final
}

// dirPrefix is "" for the root directory and "dir/" otherwise.
func dirPrefix(dir string) string {
	dir = repository.NormalizeDir(dir)
	if dir == repository.RootDir {
		return ""
	}
	return dir + "/"
}

type pendingBlob struct {
	img *model.UploadImage
	sha string
}

// UploadImagesToGitHub publishes imgs as one commit: a blob per image, one
// tree on top of the branch head, a commit and a ref update. Images whose
// blob fails are reported and skipped; a failure after the blobs fails the
// whole batch. Once the ref moves every committed image is recorded, and
// listing errors are joined into the result.
func (s *Service) UploadImagesToGitHub(ctx context.Context, cfg model.RepoConfig, imgs []*model.UploadImage) (err error) {
	if s.github == nil {
		return fmt.Errorf("%w: %s", ErrBackendNotConfigured, BackendGitHub)
	}
	start := time.Now()

	blobs := make([]pendingBlob, 0, len(imgs))
	for _, img := range imgs {
		img.UploadStatus.Uploading = true
		blob, blobErr := s.github.CreateBlob(ctx, cfg.Owner, cfg.Repo, img.Payload())
		if blobErr != nil {
			img.UploadStatus.Uploading = false
			metrics.RecordBlobFailure()
			s.logger.Warn(ctx, "blob upload failed",
				logger.String("name", img.Filename.Final),
				logger.Error(blobErr),
			)
			s.notifier.Failure(ctx, s.translator.T(i18n.BlobFailed, img.Filename.Final))
			continue
		}
		blobs = append(blobs, pendingBlob{img: img, sha: blob.SHA})
	}
	if len(blobs) == 0 {
		return ErrNoBlobs
	}

	committed := false
	defer func() {
		if err == nil || committed {
			return
		}
		metrics.RecordUpload(BackendGitHub, "failure")
		for _, b := range blobs {
			b.img.UploadStatus.Uploading = false
		}
	}()

	// the ref update must not race single-file commits
	s.githubMu.Lock()
	defer s.githubMu.Unlock()

	branch, err := s.github.GetBranch(ctx, cfg.Owner, cfg.Repo, cfg.Branch)
	if err != nil {
		return fmt.Errorf("get branch %s: %w", cfg.Branch, err)
	}

	finalPath := dirPrefix(cfg.SelectedDir)
	entries := make([]github.TreeEntry, len(blobs))
	for i, b := range blobs {
		entries[i] = github.TreeEntry{Path: finalPath + b.img.Filename.Final, SHA: b.sha}
	}
	tree, err := s.github.CreateTree(ctx, cfg.Owner, cfg.Repo, entries, branch)
	if err != nil {
		return fmt.Errorf("create tree: %w", err)
	}

	commit, err := s.github.CreateCommit(ctx, cfg.Owner, cfg.Repo, tree, branch, fmt.Sprintf(batchCommitMessage, len(blobs)))
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}

	if err = s.github.UpdateRef(ctx, cfg.Owner, cfg.Repo, cfg.Branch, commit.SHA); err != nil {
		return fmt.Errorf("update ref %s: %w", cfg.Branch, err)
	}

	committed = true

	// every blob is in the branch now, so each one is recorded even when
	// the listing rejects another
	elapsed := float64(time.Since(start).Milliseconds())
	var errs []error
	for _, b := range blobs {
		name := b.img.Filename.Final
		metrics.RecordUpload(BackendGitHub, "success")
		metrics.RecordUploadLatency(BackendGitHub, elapsed)
		metrics.RecordUploadBytes(BackendGitHub, int64(base64.StdEncoding.DecodedLen(len(b.img.Payload()))))
		if herr := s.uploadedHandle(ctx, uploadResult{name: name, sha: b.sha, path: finalPath + name}, b.img, &cfg); herr != nil {
			errs = append(errs, herr)
		}
	}
	s.logger.Info(ctx, "batch committed",
		logger.String("commit", commit.SHA),
		logger.Int("images", len(blobs)),
		logger.Int("skipped", len(imgs)-len(blobs)),
	)
	if err = errors.Join(errs...); err != nil {
		metrics.RecordErrorByComponent("service", "store_error")
		return fmt.Errorf("record batch %s: %w", commit.SHA, err)
	}
	return nil
}

// UploadImageToGitHub writes img with the contents API.
func (s *Service) UploadImageToGitHub(ctx context.Context, cfg model.RepoConfig, img *model.UploadImage) error {
	if s.github == nil {
		return fmt.Errorf("%w: %s", ErrBackendNotConfigured, BackendGitHub)
	}

	req := github.PutContentsRequest{
		Message: fmt.Sprintf(singleCommitMessage, img.Filename.Final),
		Branch:  cfg.Branch,
		Content: img.Payload(),
	}
	if cfg.Email != "" {
		req.Committer = &github.Committer{Name: cfg.Owner, Email: cfg.Email}
	}

	s.githubMu.Lock()
	img.UploadStatus.Uploading = true
	res, err := s.github.PutContents(ctx, s.UploadURL(cfg, img), req)
	img.UploadStatus.Uploading = false
	s.githubMu.Unlock()
	if err != nil {
		return fmt.Errorf("upload %s: %w", img.Filename.Final, err)
	}

	metrics.RecordUploadBytes(BackendGitHub, res.Content.Size)
	return s.uploadedHandle(ctx, uploadResult{
		name: res.Content.Name,
		sha:  res.Content.SHA,
		path: res.Content.Path,
		size: res.Content.Size,
	}, img, &cfg)
}
