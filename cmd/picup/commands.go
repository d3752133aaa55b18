package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/urfave/cli.v1"

	"github.com/okian/picup/internal/adapters/http/api"
	"github.com/okian/picup/internal/adapters/http/swagger"
	"github.com/okian/picup/internal/domain/dataurl"
	"github.com/okian/picup/internal/domain/model"
	"github.com/okian/picup/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 60 * time.Second
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var errNotImage = errors.New("not an image")

func uploadCommand() cli.Command {
	return cli.Command{
		Name:      "upload",
		Usage:     "upload image files",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "backend, b", Usage: "github or alist (default from config)"},
			cli.BoolFlag{Name: "batch", Usage: "commit all GitHub uploads at once"},
			cli.StringFlag{Name: "dir, d", Usage: "target directory"},
		},
		Action: runUpload,
	}
}

func runUpload(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("upload: at least one FILE is required", 2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, c)
	if err != nil {
		return err
	}
	if dir := c.String("dir"); dir != "" {
		cfg.GitHub.SelectedDir = dir
		cfg.Alist.Path = dir
	}
	backend := cfg.Backend
	if b := c.String("backend"); b != "" {
		backend = b
	}

	imgs := make([]*model.UploadImage, 0, c.NArg())
	for _, arg := range c.Args() {
		img, err := readImage(arg)
		if err != nil {
			return err
		}
		imgs = append(imgs, img)
	}

	e, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.svc.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = e.svc.Stop(context.Background()) }()

	done, err := e.svc.Upload(ctx, backend, cfg.Batch || c.Bool("batch"), imgs)
	for _, u := range done {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", u.Name, e.svc.Link(backend, u))
	}
	return err
}

// readImage loads path into an upload image carrying a data URL.
func readImage(path string) (*model.UploadImage, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, fmt.Errorf("%s: %w (%s)", path, errNotImage, mime.String())
	}
	return model.NewUploadImage(filepath.Base(expanded), dataurl.Encode(mime.String(), data)), nil
}

func serveCommand() cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "serve the upload API over HTTP",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "addr", Usage: "listen address (default from config)"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Addr = addr
	}

	e, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.svc.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(e.svc, e.store, e.svc, cfg.Backend).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		e.log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			_ = e.svc.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
	}
	e.log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		e.log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := e.svc.Stop(shutdownCtx); err != nil {
		e.log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	e.log.Info(ctx, "server stopped")
	return nil
}

func lsCommand() cli.Command {
	return cli.Command{
		Name:      "ls",
		Usage:     "list uploaded images, or every directory when DIR is omitted",
		ArgsUsage: "[DIR]",
		Action:    runLs,
	}
}

func runLs(c *cli.Context) error {
	ctx := context.Background()
	cfg, err := loadConfig(ctx, c)
	if err != nil {
		return err
	}
	e, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if c.NArg() == 0 {
		dirs, err := e.store.Dirs(ctx)
		if err != nil {
			return err
		}
		for _, d := range dirs {
			fmt.Fprintln(c.App.Writer, d)
		}
		return nil
	}

	imgs, err := e.store.List(ctx, c.Args().First())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, img := range imgs {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", img.Name, img.Path, img.Size)
	}
	return tw.Flush()
}
