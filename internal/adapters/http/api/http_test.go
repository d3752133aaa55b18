package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/picup/internal/adapters/http/api"
	"github.com/okian/picup/internal/adapters/repository"
	service "github.com/okian/picup/internal/app"
	"github.com/okian/picup/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type mockUploader struct {
	mu      sync.Mutex
	err     error
	backend string
	batch   bool
	imgs    []*model.UploadImage
}

func (m *mockUploader) Upload(_ context.Context, backend string, batch bool, imgs []*model.UploadImage) ([]model.UploadedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backend, m.batch, m.imgs = backend, batch, imgs

	out := make([]model.UploadedImage, 0, len(imgs))
	for _, img := range imgs {
		dir := "/"
		if img.IsReUpload() {
			dir = img.ReUploadInfo.Dir
		}
		out = append(out, model.UploadedImage{Type: model.ImageType, UUID: img.UUID, Dir: dir, Name: img.Filename.Final, Path: img.Filename.Final, Deployed: true})
	}
	if m.err != nil {
		return out[:0], m.err
	}
	return out, nil
}

func (m *mockUploader) Link(backend string, img model.UploadedImage) string {
	return "https://cdn.example.com/" + backend + "/" + img.Path
}

type mockStats struct{}

func (mockStats) GetStats(context.Context) map[string]any {
	return map[string]any{"started": true}
}

func newMux(up *mockUploader, store repository.Store) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(up, store, mockStats{}, "github").Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockUploader{}, repository.NewMemoryStore())

		Convey("Then the health endpoint should serve metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "picup_")
		})

		Convey("Then the stats endpoint should return JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats["started"], ShouldEqual, true)
			So(stats, ShouldContainKey, "uptimeSeconds")
		})

		Convey("Then wrong methods should be rejected", func() {
			So(do(mux, http.MethodGet, "/uploads", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/stats", "{}").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodDelete, "/images", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestUploadsHandler(t *testing.T) {
	Convey("Given an API server with a working uploader", t, func() {
		up := &mockUploader{}
		mux := newMux(up, repository.NewMemoryStore())

		Convey("When posting a valid upload without a backend", func() {
			w := do(mux, http.MethodPost, "/uploads", `{"batch":true,"images":[{"name":"a.png","data":"data:image/png;base64,cG5n"}]}`)

			Convey("Then the default backend should be used and links returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(up.backend, ShouldEqual, "github")
				So(up.batch, ShouldBeTrue)

				var res struct {
					Backend string `json:"backend"`
					Images  []struct {
						Name string `json:"name"`
						Link string `json:"link"`
						Type string `json:"type"`
					} `json:"images"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.Backend, ShouldEqual, "github")
				So(res.Images, ShouldHaveLength, 1)
				So(res.Images[0].Link, ShouldEqual, "https://cdn.example.com/github/a.png")
				So(res.Images[0].Type, ShouldEqual, "image")
			})
		})

		Convey("When posting a re-upload", func() {
			w := do(mux, http.MethodPost, "/uploads", `{"backend":"alist","images":[{"name":"a.png","data":"x","reupload":{"dir":"old","path":"old/a.png"}}]}`)

			Convey("Then the re-upload marker should reach the uploader", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(up.backend, ShouldEqual, "alist")
				So(up.imgs[0].IsReUpload(), ShouldBeTrue)
				So(up.imgs[0].ReUploadInfo.Path, ShouldEqual, "old/a.png")
			})
		})

		Convey("When the request is malformed", func() {
			cases := []string{
				`not json`,
				`{"images":[]}`,
				`{"backend":"s3","images":[{"name":"a.png","data":"x"}]}`,
				`{"images":[{"name":"","data":"x"}]}`,
				`{"images":[{"name":"../a.png","data":"x"}]}`,
				`{"images":[{"name":"a.png","data":""}]}`,
			}
			for i, body := range cases {
				Convey(fmt.Sprintf("Then case %d should be a bad request", i), func() {
					w := do(mux, http.MethodPost, "/uploads", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(up.imgs, ShouldBeNil)
				})
			}
		})
	})

	Convey("Given an uploader that fails", t, func() {
		up := &mockUploader{}
		mux := newMux(up, repository.NewMemoryStore())
		body := `{"images":[{"name":"a.png","data":"x"}]}`

		cases := []struct {
			err    error
			status int
		}{
			{service.ErrNoBlobs, http.StatusBadGateway},
			{service.ErrDuplicatePath, http.StatusConflict},
			{service.ErrBackendNotConfigured, http.StatusBadRequest},
			{service.ErrQueueFull, http.StatusTooManyRequests},
			{service.ErrNotStarted, http.StatusServiceUnavailable},
		}
		for _, tc := range cases {
			err, status := tc.err, tc.status
			Convey(fmt.Sprintf("When the upload fails with %q", err), func() {
				up.err = fmt.Errorf("wrapped: %w", err)
				w := do(mux, http.MethodPost, "/uploads", body)

				Convey(fmt.Sprintf("Then the response should be %d", status), func() {
					So(w.Code, ShouldEqual, status)
					So(w.Body.String(), ShouldContainSubstring, err.Error())
				})
			})
		}
	})
}

func TestImagesHandler(t *testing.T) {
	Convey("Given a store with one image", t, func() {
		store := repository.NewMemoryStore()
		ctx := context.Background()
		So(store.AddImage(ctx, model.UploadedImage{Dir: "pics/2024", Name: "a.png", Path: "pics/2024/a.png"}), ShouldBeNil)
		mux := newMux(&mockUploader{}, store)

		Convey("When listing its dir", func() {
			w := do(mux, http.MethodGet, "/images?dir=/pics/2024/", "")

			Convey("Then the image should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res struct {
					Dir    string                `json:"dir"`
					Images []model.UploadedImage `json:"images"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.Dir, ShouldEqual, "pics/2024")
				So(res.Images, ShouldHaveLength, 1)
				So(res.Images[0].Name, ShouldEqual, "a.png")
			})
		})

		Convey("When listing the root", func() {
			w := do(mux, http.MethodGet, "/images", "")

			Convey("Then an empty listing should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When listing an unknown dir", func() {
			w := do(mux, http.MethodGet, "/images?dir=nope", "")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When listing dirs", func() {
			w := do(mux, http.MethodGet, "/dirs", "")

			Convey("Then every ancestor should be present", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var res struct {
					Dirs []string `json:"dirs"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &res), ShouldBeNil)
				So(res.Dirs, ShouldResemble, []string{"/", "pics", "pics/2024"})
			})
		})
	})
}
