// Package service orchestrates image uploads to GitHub or Alist and keeps
// the image directory listing in sync with what was uploaded.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/okian/picup/internal/adapters/alist"
	"github.com/okian/picup/internal/adapters/github"
	uploadqueue "github.com/okian/picup/internal/adapters/mq/queue"
	workerpool "github.com/okian/picup/internal/adapters/mq/worker"
	"github.com/okian/picup/internal/adapters/repository"
	"github.com/okian/picup/internal/domain/dataurl"
	"github.com/okian/picup/internal/domain/dedupe"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/internal/i18n"
	"github.com/okian/picup/pkg/logger"
	"github.com/okian/picup/pkg/metrics"
)

// Backend names accepted by Upload.
const (
	BackendGitHub = "github"
	BackendAlist  = "alist"
)

const (
	defaultQueueSize  = 1024
	defaultDedupeSize = 10_000
	fetchTimeout      = 60 * time.Second
)

// GitHubAPI is the part of the GitHub client the service needs.
type GitHubAPI interface {
	CreateBlob(ctx context.Context, owner, repo, content string) (github.Blob, error)
	GetBranch(ctx context.Context, owner, repo, branch string) (github.Branch, error)
	CreateTree(ctx context.Context, owner, repo string, entries []github.TreeEntry, branch github.Branch) (string, error)
	CreateCommit(ctx context.Context, owner, repo, treeSHA string, branch github.Branch, message string) (github.Commit, error)
	UpdateRef(ctx context.Context, owner, repo, branch, sha string) error
	PutContents(ctx context.Context, urlPath string, req github.PutContentsRequest) (github.ContentsResponse, error)
}

// AlistAPI is the part of the Alist client the service needs.
type AlistAPI interface {
	Put(ctx context.Context, filePath string, f dataurl.File) error
	Server() string
}

var (
	_ GitHubAPI = (*github.Client)(nil)
	_ AlistAPI  = (*alist.Client)(nil)
)

// Service uploads images and records them in the directory listing.
type Service struct {
	mu sync.RWMutex

	// Backends
	github   GitHubAPI
	repo     model.RepoConfig
	alist    AlistAPI
	alistCfg model.AlistConfig

	// GitHub rejects concurrent writes to one branch.
	githubMu sync.Mutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	queue      *uploadqueue.InMemoryQueue
	pool       *workerpool.Pool
	notifier   Notifier
	translator *i18n.Translator
	httpClient *http.Client

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int

	started bool
	logger  logger.Logger
}

// New constructs a Service. Backends are enabled with WithGitHub and
// WithAlist; without WithStore an in-memory listing is used.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.notifier == nil {
		s.notifier = logNotifier{logger: s.logger}
	}
	if s.translator == nil {
		s.translator = i18n.New("en")
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: fetchTimeout}
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Store returns the directory listing the service writes to.
func (s *Service) Store() repository.Store { return s.store }

// Start creates the job queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = uploadqueue.NewInMemoryQueue(uploadqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	// workers outlive the request that started them
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "upload service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("github", s.github != nil),
		logger.Bool("alist", s.alist != nil),
	)
	return nil
}

// Stop drains queued jobs and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping upload service...")

	err := s.pool.Shutdown(ctx)
	s.started = false

	s.logger.Info(ctx, "upload service stopped")
	return err
}

// Submit enqueues j for a worker. It returns false when the service is not
// started or the queue cannot take the job.
func (s *Service) Submit(ctx context.Context, j uploadqueue.Job) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return false
	}
	return s.queue.Enqueue(ctx, j)
}

// Upload uploads imgs to backend. GitHub uploads with batch set go out as
// a single commit; everything else runs one job per image on the worker
// pool. Images that made it are returned even when others failed. When ctx
// ends first, only the images already finished are returned; the rest keep
// their path claimed until their job completes.
func (s *Service) Upload(ctx context.Context, backend string, batch bool, imgs []*model.UploadImage) ([]model.UploadedImage, error) {
	if err := s.checkBackend(backend); err != nil {
		return nil, err
	}

	batch = batch && backend == BackendGitHub
	keys, err := s.claim(ctx, backend, batch, imgs)
	if err != nil {
		return nil, err
	}

	if batch {
		defer s.release(ctx, keys...)
		err = s.UploadImagesToGitHub(ctx, s.repo, imgs)
		return uploaded(imgs), err
	}
	return s.runJobs(ctx, backend, imgs, keys)
}

// runJobs submits one job per image. Each job releases its own path claim
// once the worker is done with it.
func (s *Service) runJobs(ctx context.Context, backend string, imgs []*model.UploadImage, keys []string) ([]model.UploadedImage, error) {
	type pending struct {
		img    *model.UploadImage
		result chan error
	}

	waiting := make([]pending, 0, len(imgs))
	var errs []error
	for i, img := range imgs {
		key := keys[i]
		result := make(chan error, 1)
		j := uploadqueue.Job{
			ID:      img.UUID,
			Backend: backend,
			Image:   img,
			Result:  result,
			Done:    func() { s.release(ctx, key) },
		}
		if !s.Submit(ctx, j) {
			s.release(ctx, key)
			if !s.isStarted() {
				errs = append(errs, fmt.Errorf("%s: %w", img.Filename.Final, ErrNotStarted))
			} else {
				errs = append(errs, fmt.Errorf("%s: %w", img.Filename.Final, ErrQueueFull))
			}
			continue
		}
		waiting = append(waiting, pending{img: img, result: result})
	}

	out := make([]model.UploadedImage, 0, len(waiting))
	for _, p := range waiting {
		select {
		case err := <-p.result:
			// the worker is done with p.img once its result arrives
			if err != nil {
				errs = append(errs, err)
			} else if p.img.UploadedImg != nil {
				out = append(out, *p.img.UploadedImg)
			}
		case <-ctx.Done():
			return out, errors.Join(append(errs, ctx.Err())...)
		}
	}
	return out, errors.Join(errs...)
}

// UploadOne uploads a single image. Workers call it for every job.
func (s *Service) UploadOne(ctx context.Context, backend string, img *model.UploadImage) error {
	start := time.Now()

	var err error
	switch backend {
	case BackendGitHub:
		err = s.UploadImageToGitHub(ctx, s.repo, img)
	case BackendAlist:
		err = s.UploadImageToAlist(ctx, img)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	metrics.RecordUploadLatency(backend, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordUpload(backend, "failure")
		s.notifier.Failure(ctx, s.translator.T(i18n.UploadFailed, img.Filename.Final, err))
		return err
	}
	metrics.RecordUpload(backend, "success")
	s.notifier.Success(ctx, s.translator.T(i18n.UploadOK, img.Filename.Final, backend))
	return nil
}

// claim reserves the target path of every image and returns the keys in
// image order.
func (s *Service) claim(ctx context.Context, backend string, batch bool, imgs []*model.UploadImage) ([]string, error) {
	keys := make([]string, 0, len(imgs))
	for _, img := range imgs {
		key := backend + ":" + s.targetPath(backend, batch, img)
		if s.deduper.SeenAndRecord(ctx, key) {
			s.release(ctx, keys...)
			metrics.RecordDuplicatePath()
			s.notifier.Failure(ctx, s.translator.T(i18n.DuplicatePath, img.Filename.Final))
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, key)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Service) release(ctx context.Context, keys ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, k := range keys {
		s.deduper.Unrecord(ctx, k)
	}
}

// targetPath is where img will be written. Batch commits always place
// files under the selected dir, re-uploads included.
func (s *Service) targetPath(backend string, batch bool, img *model.UploadImage) string {
	switch {
	case backend == BackendAlist:
		return alistDir(s.alistCfg.Path) + img.Filename.Final
	case batch:
		return dirPrefix(s.repo.SelectedDir) + img.Filename.Final
	default:
		return repoFilePath(s.repo, img)
	}
}

func (s *Service) checkBackend(backend string) error {
	switch backend {
	case BackendGitHub:
		if s.github == nil {
			return fmt.Errorf("%w: %s", ErrBackendNotConfigured, backend)
		}
	case BackendAlist:
		if s.alist == nil {
			return fmt.Errorf("%w: %s", ErrBackendNotConfigured, backend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	return nil
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func uploaded(imgs []*model.UploadImage) []model.UploadedImage {
	out := make([]model.UploadedImage, 0, len(imgs))
	for _, img := range imgs {
		if img.UploadedImg != nil {
			out = append(out, *img.UploadedImg)
		}
	}
	return out
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"inFlight":     s.deduper.Size(),
		"storedImages": s.store.Count(ctx),
		"github":       s.github != nil,
		"alist":        s.alist != nil,
	}
	if s.started {
		processed, failed := s.pool.Stats()
		stats["queueLength"] = s.queue.Len(ctx)
		stats["processed"] = processed
		stats["failed"] = failed
	}
	return stats
}
