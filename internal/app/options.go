package service

import (
	"net/http"

	"github.com/okian/picup/internal/adapters/repository"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/internal/i18n"
	"github.com/okian/picup/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of upload workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued upload jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds how many in-flight target paths are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the directory listing store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithGitHub enables the GitHub backend for the given repository.
func WithGitHub(client GitHubAPI, cfg model.RepoConfig) Option {
	return func(s *Service) {
		s.github = client
		s.repo = cfg
	}
}

// WithAlist enables the Alist backend.
func WithAlist(client AlistAPI, cfg model.AlistConfig) Option {
	return func(s *Service) {
		s.alist = client
		s.alistCfg = cfg
	}
}

// WithNotifier replaces the default log based notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithTranslator sets the locale used for notices.
func WithTranslator(t *i18n.Translator) Option {
	return func(s *Service) {
		if t != nil {
			s.translator = t
		}
	}
}

// WithHTTPClient sets the client used to download non data URL images.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}
