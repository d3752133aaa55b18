// Package repository keeps the image directory listing: which directories
// exist and which uploaded images each one holds.
package repository

import (
	"context"
	"path"
	"strings"

	"github.com/okian/picup/internal/domain/model"
)

// RootDir is the normalized name of the top-level directory.
const RootDir = "/"

// Store provides read/write access to the directory listing.
type Store interface {
	// AddDir records dir and all of its ancestors.
	AddDir(ctx context.Context, dir string) error

	// AddImage records img under img.Dir, replacing an entry with the same name.
	AddImage(ctx context.Context, img model.UploadedImage) error

	// List returns the images of dir ordered by name.
	// Returns ErrDirNotFound if dir was never added.
	List(ctx context.Context, dir string) ([]model.UploadedImage, error)

	// Dirs returns every known directory in lexical order.
	Dirs(ctx context.Context) ([]string, error)

	// Count returns the number of images across all directories.
	Count(ctx context.Context) int
}

// NormalizeDir trims surrounding slashes and cleans dir; the empty result is RootDir.
func NormalizeDir(dir string) string {
	dir = strings.Trim(path.Clean("/"+strings.TrimSpace(dir)), "/")
	if dir == "" {
		return RootDir
	}
	return dir
}

// Ancestors returns dir and every parent of it, root first.
func Ancestors(dir string) []string {
	dir = NormalizeDir(dir)
	out := []string{RootDir}
	if dir == RootDir {
		return out
	}
	parts := strings.Split(dir, "/")
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}
