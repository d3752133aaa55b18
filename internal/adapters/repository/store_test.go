package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/okian/picup/internal/adapters/repository"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestNormalizeDir(t *testing.T) {
	Convey("Given directory names in various shapes", t, func() {
		Convey("Then they should normalize to slash-free relative paths", func() {
			So(repository.NormalizeDir(""), ShouldEqual, "/")
			So(repository.NormalizeDir("/"), ShouldEqual, "/")
			So(repository.NormalizeDir("/images/"), ShouldEqual, "images")
			So(repository.NormalizeDir("a//b/"), ShouldEqual, "a/b")
			So(repository.NormalizeDir("../x"), ShouldEqual, "x")
		})

		Convey("Then ancestors should be listed root first", func() {
			So(repository.Ancestors("/"), ShouldResemble, []string{"/"})
			So(repository.Ancestors("a/b/c"), ShouldResemble, []string{"/", "a", "a/b", "a/b/c"})
		})
	})
}

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(newStore func() repository.Store) {
	ctx := context.Background()

	Convey("When a nested directory is added", func() {
		s := newStore()
		So(s.AddDir(ctx, "2024/cats"), ShouldBeNil)

		Convey("Then it and its ancestors should be listed", func() {
			dirs, err := s.Dirs(ctx)
			So(err, ShouldBeNil)
			So(dirs, ShouldResemble, []string{"/", "2024", "2024/cats"})
		})

		Convey("Then the new directory should be empty", func() {
			images, err := s.List(ctx, "/2024/cats/")
			So(err, ShouldBeNil)
			So(images, ShouldBeEmpty)
		})
	})

	Convey("When images are added", func() {
		s := newStore()
		So(s.AddImage(ctx, model.UploadedImage{Type: model.ImageType, Dir: "pics", Name: "b.png", Path: "pics/b.png", Deployed: true}), ShouldBeNil)
		So(s.AddImage(ctx, model.UploadedImage{Type: model.ImageType, Dir: "pics", Name: "a.png", Path: "pics/a.png", Sha: "1"}), ShouldBeNil)

		Convey("Then they should be listed by name", func() {
			images, err := s.List(ctx, "pics")
			So(err, ShouldBeNil)
			So(len(images), ShouldEqual, 2)
			So(images[0].Name, ShouldEqual, "a.png")
			So(images[1].Name, ShouldEqual, "b.png")
			So(images[1].Deployed, ShouldBeTrue)
			So(s.Count(ctx), ShouldEqual, 2)
		})

		Convey("And an image with the same name is added again", func() {
			So(s.AddImage(ctx, model.UploadedImage{Dir: "/pics/", Name: "a.png", Sha: "2"}), ShouldBeNil)

			Convey("Then it should replace the old record", func() {
				images, err := s.List(ctx, "pics")
				So(err, ShouldBeNil)
				So(len(images), ShouldEqual, 2)
				So(images[0].Sha, ShouldEqual, "2")
				So(s.Count(ctx), ShouldEqual, 2)
			})
		})
	})

	Convey("When listing an unknown directory", func() {
		s := newStore()
		_, err := s.List(ctx, "nope")

		Convey("Then ErrDirNotFound should be returned", func() {
			So(errors.Is(err, repository.ErrDirNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		exerciseStore(func() repository.Store { return repository.NewMemoryStore() })
	})
}

func TestRedisStore(t *testing.T) {
	Convey("Given a redis store backed by miniredis", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer func() { _ = client.Close() }()

		exerciseStore(func() repository.Store {
			mr.FlushAll()
			return repository.NewRedisStore(client, repository.WithKeyPrefix("test"))
		})

		Convey("When a record is written", func() {
			mr.FlushAll()
			s := repository.NewRedisStore(client, repository.WithKeyPrefix("test"))
			So(s.AddImage(context.Background(), model.UploadedImage{Dir: "x", Name: "y.png"}), ShouldBeNil)

			Convey("Then keys should use the configured prefix", func() {
				So(mr.Exists("test:dirs"), ShouldBeTrue)
				So(mr.Exists("test:dir:x"), ShouldBeTrue)
			})
		})

		Convey("When a stored record is corrupt", func() {
			mr.FlushAll()
			s := repository.NewRedisStore(client, repository.WithKeyPrefix("test"))
			So(s.AddImage(context.Background(), model.UploadedImage{Dir: "x", Name: "ok.png"}), ShouldBeNil)
			mr.HSet("test:dir:x", "bad.png", "{not json")

			Convey("Then it should be skipped", func() {
				images, err := s.List(context.Background(), "x")
				So(err, ShouldBeNil)
				So(len(images), ShouldEqual, 1)
				So(images[0].Name, ShouldEqual, "ok.png")
			})
		})
	})
}
