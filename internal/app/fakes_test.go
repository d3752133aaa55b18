package service_test

import (
	"context"
	"encoding/base64"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/okian/picup/internal/adapters/github"
	"github.com/okian/picup/internal/adapters/repository"
	uploadqueue "github.com/okian/picup/internal/adapters/mq/queue"
	"github.com/okian/picup/internal/domain/dataurl"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var errRemote = errors.New("remote failure")

// fakeGitHub records calls and fails where told to.
type fakeGitHub struct {
	mu sync.Mutex

	failBlob  map[string]bool // by payload
	branchErr error
	treeErr   error
	refErr    error
	putErr    error
	putDelay  time.Duration

	blobs     []string
	branches  int
	trees     [][]github.TreeEntry
	messages  []string
	refs      []string
	puts      []string
	putReqs   []github.PutContentsRequest
	inFlight  int
	maxFlight int
}

func (f *fakeGitHub) CreateBlob(_ context.Context, _, _, content string) (github.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBlob[content] {
		return github.Blob{}, errRemote
	}
	f.blobs = append(f.blobs, content)
	return github.Blob{SHA: "blob-" + content}, nil
}

func (f *fakeGitHub) GetBranch(_ context.Context, _, _, branch string) (github.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches++
	if f.branchErr != nil {
		return github.Branch{}, f.branchErr
	}
	return github.Branch{Name: branch, HeadSHA: "head", TreeSHA: "tree0"}, nil
}

func (f *fakeGitHub) CreateTree(_ context.Context, _, _ string, entries []github.TreeEntry, _ github.Branch) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.treeErr != nil {
		return "", f.treeErr
	}
	f.trees = append(f.trees, entries)
	return "tree1", nil
}

func (f *fakeGitHub) CreateCommit(_ context.Context, _, _, _ string, _ github.Branch, message string) (github.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return github.Commit{SHA: "commit1"}, nil
}

func (f *fakeGitHub) UpdateRef(_ context.Context, _, _, _, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refErr != nil {
		return f.refErr
	}
	f.refs = append(f.refs, sha)
	return nil
}

func (f *fakeGitHub) PutContents(_ context.Context, urlPath string, req github.PutContentsRequest) (github.ContentsResponse, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.putDelay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.putErr != nil {
		return github.ContentsResponse{}, f.putErr
	}
	f.puts = append(f.puts, urlPath)
	f.putReqs = append(f.putReqs, req)

	_, filePath, _ := strings.Cut(urlPath, "/contents/")
	raw, _ := base64.StdEncoding.DecodeString(req.Content)
	return github.ContentsResponse{Content: github.Content{
		Name: path.Base(filePath),
		Path: filePath,
		SHA:  "sha-" + path.Base(filePath),
		Size: int64(len(raw)),
	}}, nil
}

func (f *fakeGitHub) maxConcurrentPuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxFlight
}

// fakeAlist records puts.
type fakeAlist struct {
	mu     sync.Mutex
	err    error
	puts   map[string][]byte
	server string
}

func newFakeAlist() *fakeAlist {
	return &fakeAlist{puts: map[string][]byte{}, server: "https://pan.example.com/"}
}

func (f *fakeAlist) Put(_ context.Context, filePath string, file dataurl.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.puts[filePath] = file.Data
	return nil
}

func (f *fakeAlist) Server() string { return f.server }

// recordingNotifier keeps every notice.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Failure(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, msg)
}

func (n *recordingNotifier) failed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.failures...)
}

func (n *recordingNotifier) succeeded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...)
}

// pngURL is a data URL whose payload decodes to "png".
const pngURL = "data:image/png;base64,cG5n"

func jobFor(name string) uploadqueue.Job {
	return uploadqueue.Job{ID: name, Backend: "github", Image: model.NewUploadImage(name, pngURL)}
}

var errStore = errors.New("store unavailable")

// flakyStore fails the first AddImage call.
type flakyStore struct {
	repository.Store
	mu     sync.Mutex
	failed bool
}

func (f *flakyStore) AddImage(ctx context.Context, img model.UploadedImage) error {
	f.mu.Lock()
	first := !f.failed
	f.failed = true
	f.mu.Unlock()
	if first {
		return errStore
	}
	return f.Store.AddImage(ctx, img)
}
