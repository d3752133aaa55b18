// Package alist uploads files to an Alist server through its fs API.
package alist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/okian/picup/internal/domain/dataurl"
	"github.com/okian/picup/pkg/logger"
	"github.com/okian/picup/pkg/metrics"
)

const (
	defaultTimeout = 60 * time.Second
	backendLabel   = "alist"
	codeOK         = 200
	codeUnauth     = 401
)

// Client uploads to one Alist server as one user.
type Client struct {
	server   string
	username string
	password string
	http     *http.Client
	logger   logger.Logger

	mu    sync.Mutex
	token string
}

// NewClient returns a client for server. Credentials are used lazily by
// Login.
func NewClient(server, username, password string, opts ...Option) *Client {
	c := &Client{
		server:   strings.TrimRight(server, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("alist")
	}
	return c
}

// Server returns the server root the client talks to.
func (c *Client) Server() string { return c.server }

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Login authenticates and caches the returned token.
func (c *Client) Login(ctx context.Context) (string, error) {
	raw, err := sonic.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLogin, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/auth/login", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLogin, err)
	}
	req.Header.Set("Content-Type", "application/json")

	env, err := c.send(req, "auth/login")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLogin, err)
	}
	if env.Code != codeOK || env.Data.Token == "" {
		return "", fmt.Errorf("%w: code %d: %s", ErrLogin, env.Code, env.Message)
	}

	c.mu.Lock()
	c.token = env.Data.Token
	c.mu.Unlock()
	return env.Data.Token, nil
}

// Put stores f at filePath, logging in first when no token is cached. An
// expired token is refreshed once.
func (c *Client) Put(ctx context.Context, filePath string, f dataurl.File) error {
	token, err := c.cachedToken(ctx)
	if err != nil {
		return err
	}

	env, err := c.put(ctx, token, filePath, f)
	if err != nil {
		return err
	}
	if env.Code == codeUnauth {
		c.logger.Info(ctx, "alist token rejected, logging in again", logger.String("path", filePath))
		if token, err = c.Login(ctx); err != nil {
			return err
		}
		if env, err = c.put(ctx, token, filePath, f); err != nil {
			return err
		}
	}
	if env.Code != codeOK {
		return fmt.Errorf("%w: %s: code %d: %s", ErrPut, filePath, env.Code, env.Message)
	}
	return nil
}

func (c *Client) cachedToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.Login(ctx)
}

func (c *Client) put(ctx context.Context, token, filePath string, f dataurl.File) (envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.server+"/api/fs/put", bytes.NewReader(f.Data))
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %w", ErrPut, err)
	}
	req.ContentLength = f.Size()
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.FormatInt(f.Size(), 10))
	req.Header.Set("File-Path", url.PathEscape(filePath))
	req.Header.Set("As-Task", "true")

	env, err := c.send(req, "fs/put")
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %w", ErrPut, err)
	}
	return env, nil
}

// send performs req and decodes the Alist response envelope. Alist reports
// most failures in the envelope code, so only transport errors and
// undecodable bodies are returned as errors.
func (c *Client) send(req *http.Request, endpoint string) (envelope, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordAPIRequest(backendLabel, endpoint, "error", elapsed)
		metrics.RecordErrorByComponent(backendLabel, "transport")
		return envelope{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordAPIRequest(backendLabel, endpoint, strconv.Itoa(resp.StatusCode), elapsed)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, err
	}

	var env envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		if resp.StatusCode == http.StatusUnauthorized {
			return envelope{Code: codeUnauth, Message: http.StatusText(resp.StatusCode)}, nil
		}
		return envelope{}, fmt.Errorf("decode %s response (status %d): %w", endpoint, resp.StatusCode, err)
	}

	c.logger.Debug(req.Context(), "alist api call",
		logger.String("endpoint", endpoint),
		logger.Int("status", resp.StatusCode),
		logger.Int("code", env.Code),
	)
	if env.Code != codeOK {
		metrics.RecordErrorByComponent(backendLabel, "code_"+strconv.Itoa(env.Code))
	}
	return env, nil
}
