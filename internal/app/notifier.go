package service

import (
	"context"

	"github.com/okian/picup/pkg/logger"
)

// Notifier surfaces per-image outcomes to whoever triggered the upload.
type Notifier interface {
	Success(ctx context.Context, msg string)
	Failure(ctx context.Context, msg string)
}

type logNotifier struct {
	logger logger.Logger
}

func (n logNotifier) Success(ctx context.Context, msg string) {
	n.logger.Info(ctx, msg)
}

func (n logNotifier) Failure(ctx context.Context, msg string) {
	n.logger.Warn(ctx, msg)
}
