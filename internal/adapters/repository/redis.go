package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/pkg/logger"
	"github.com/okian/picup/pkg/metrics"
)

const defaultKeyPrefix = "picup"

// RedisStore keeps the listing in Redis so several picup processes share it.
// Layout: a set <prefix>:dirs with every directory, and one hash
// <prefix>:dir:<dir> per directory mapping image name to its JSON record.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger logger.Logger
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		logger: logger.Get().Named("redis-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) dirsKey() string          { return s.prefix + ":dirs" }
func (s *RedisStore) dirKey(dir string) string { return s.prefix + ":dir:" + dir }

// AddDir adds dir and its ancestors to the dirs set.
func (s *RedisStore) AddDir(ctx context.Context, dir string) error {
	ancestors := Ancestors(dir)
	members := make([]any, len(ancestors))
	for i, d := range ancestors {
		members[i] = d
	}
	if err := s.client.SAdd(ctx, s.dirsKey(), members...).Err(); err != nil {
		metrics.RecordErrorByComponent("store", "redis_sadd")
		return fmt.Errorf("%w: add dir %q: %w", ErrStore, dir, err)
	}
	s.refreshDirGauge(ctx)
	return nil
}

// AddImage writes img into the hash of its dir, replacing a record with the same name.
func (s *RedisStore) AddImage(ctx context.Context, img model.UploadedImage) error {
	dir := NormalizeDir(img.Dir)
	if err := s.AddDir(ctx, dir); err != nil {
		return err
	}

	raw, err := sonic.Marshal(img)
	if err != nil {
		return fmt.Errorf("%w: encode %q: %w", ErrStore, img.Name, err)
	}
	if err := s.client.HSet(ctx, s.dirKey(dir), img.Name, raw).Err(); err != nil {
		metrics.RecordErrorByComponent("store", "redis_hset")
		return fmt.Errorf("%w: add image %q: %w", ErrStore, img.Name, err)
	}
	metrics.UpdateStoredImages(s.Count(ctx))
	return nil
}

// List returns the images of dir sorted by name.
func (s *RedisStore) List(ctx context.Context, dir string) ([]model.UploadedImage, error) {
	dir = NormalizeDir(dir)
	known, err := s.client.SIsMember(ctx, s.dirsKey(), dir).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if !known {
		return nil, ErrDirNotFound
	}

	entries, err := s.client.HGetAll(ctx, s.dirKey(dir)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	out := make([]model.UploadedImage, 0, len(entries))
	for name, raw := range entries {
		var img model.UploadedImage
		if err := sonic.UnmarshalString(raw, &img); err != nil {
			s.logger.Warn(ctx, "skipping undecodable image record",
				logger.String("dir", dir), logger.String("name", name), logger.Error(err))
			continue
		}
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Dirs returns the members of the dirs set in lexical order.
func (s *RedisStore) Dirs(ctx context.Context) ([]string, error) {
	dirs, err := s.client.SMembers(ctx, s.dirsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Count sums the hash sizes of all directories. Errors count as zero.
func (s *RedisStore) Count(ctx context.Context) int {
	dirs, err := s.client.SMembers(ctx, s.dirsKey()).Result()
	if err != nil {
		return 0
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(dirs))
	for i, d := range dirs {
		cmds[i] = pipe.HLen(ctx, s.dirKey(d))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0
	}
	n := 0
	for _, c := range cmds {
		n += int(c.Val())
	}
	return n
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) refreshDirGauge(ctx context.Context) {
	if n, err := s.client.SCard(ctx, s.dirsKey()).Result(); err == nil {
		metrics.UpdateStoredDirs(int(n))
	}
}
