package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/reqtaker/internal/agent"
	"github.com/rohankatakam/reqtaker/internal/auth"
	"github.com/rohankatakam/reqtaker/internal/config"
	"github.com/rohankatakam/reqtaker/internal/drive"
	"github.com/rohankatakam/reqtaker/internal/extract"
	"github.com/rohankatakam/reqtaker/internal/pipeline"
	"github.com/rohankatakam/reqtaker/internal/storage"
)

// session holds everything a crew command opens, closed in reverse order.
type session struct {
	built   *pipeline.Built
	store   storage.Store
	drive   *driveProcessor
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.WithError(err).Debug("close failed")
		}
	}
}

// driveProcessor authenticates and builds the extractor on first use, so
// commands that never touch Drive (a replay from a later task) do not
// need a Google login. The extractor is built with the session context
// rather than the first tool call's, which is cancelled when that agent
// returns while the Drive client keeps refreshing its token.
type driveProcessor struct {
	ctx       context.Context
	build     func(ctx context.Context) (*extract.Extractor, *extract.Cache, error)
	once      sync.Once
	extractor *extract.Extractor
	cache     *extract.Cache
	err       error
}

func newDriveProcessor(ctx context.Context) *driveProcessor {
	return &driveProcessor{
		ctx: ctx,
		build: func(ctx context.Context) (*extract.Extractor, *extract.Cache, error) {
			return newExtractor(ctx, true)
		},
	}
}

func (d *driveProcessor) Process(ctx context.Context, folderID string) (*extract.Result, error) {
	d.once.Do(func() {
		d.extractor, d.cache, d.err = d.build(d.ctx)
	})
	if d.err != nil {
		return nil, d.err
	}
	return d.extractor.Process(ctx, folderID)
}

func (d *driveProcessor) Close() error {
	if d.cache != nil {
		return d.cache.Close()
	}
	return nil
}

// newDriveService returns an authorized Drive client. With interactive
// set the browser flow runs when no usable token is stored.
func newDriveService(ctx context.Context, interactive bool) (*drive.Service, error) {
	a, err := auth.NewAuthenticator(cfg.Drive.CredentialsFile, cfg.Drive.TokenFile, os.Stderr, cfg.Drive.AuthTimeout)
	if err != nil {
		return nil, err
	}
	httpClient, err := a.HTTPClient(ctx, interactive && config.IsInteractive())
	if err != nil {
		return nil, err
	}
	return drive.NewService(ctx, httpClient, drive.Options{
		PageSize:         cfg.Drive.PageSize,
		MaxDownloadBytes: cfg.Extraction.MaxFileBytes,
	})
}

func newExtractor(ctx context.Context, interactive bool) (*extract.Extractor, *extract.Cache, error) {
	svc, err := newDriveService(ctx, interactive)
	if err != nil {
		return nil, nil, err
	}

	opts := extract.Options{Recursive: true, MaxFileBytes: cfg.Extraction.MaxFileBytes}
	var cache *extract.Cache
	if cfg.Extraction.CacheEnabled {
		cache, err = extract.OpenCache(cfg.Extraction.CachePath)
		if err != nil {
			logger.WithError(err).Warn("Extraction cache unavailable, continuing without it")
		} else {
			opts.Cache = cache
		}
	}
	if cfg.Extraction.ShowProgress && !quiet && config.IsInteractive() {
		opts.Progress = newProgressBar(os.Stderr)
	}
	return extract.NewExtractor(svc, opts), cache, nil
}

// openSession wires storage, the drive processor and the crew.
func openSession(ctx context.Context) (*session, error) {
	s := &session{drive: newDriveProcessor(ctx)}
	s.closers = append(s.closers, s.drive.Close)

	store, err := storage.NewSQLiteStore(cfg.Storage.Path, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = store
	s.closers = append(s.closers, store.Close)

	built, err := pipeline.Build(ctx, cfg, pipeline.Deps{
		Processor: s.drive,
		Store:     store,
		OnStep:    stepCallback,
		OnTask:    taskCallback,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.built = built
	s.closers = append(s.closers, built.Close)
	return s, nil
}

// openStoreOnly opens the run database for commands that only read it.
func openStoreOnly() (*storage.SQLiteStore, error) {
	return storage.NewSQLiteStore(cfg.Storage.Path, logger)
}

func stepCallback(ev agent.StepEvent) {
	if !cfg.Pipeline.Verbose {
		return
	}
	fields := logrus.Fields{"agent": ev.Agent, "iteration": ev.Iteration}
	if ev.Tool != "" {
		fields["tool"] = ev.Tool
		logger.WithFields(fields).Infof("🔧 tool returned %d characters", len(ev.Text))
		return
	}
	if ev.Tokens > 0 {
		fields["tokens"] = ev.Tokens
	}
	logger.WithFields(fields).Info("🤖 " + preview(ev.Text, 160))
}

func taskCallback(ev pipeline.TaskEvent) {
	fields := logrus.Fields{
		"task":     ev.Task.Name,
		"task_id":  ev.TaskID,
		"duration": ev.Duration.Round(time.Second),
	}
	if ev.OutputFile != "" {
		fields["output_file"] = ev.OutputFile
	}
	logger.WithFields(fields).Infof("✅ task %d/%d completed", ev.Position, ev.Total)
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "(calling tools)"
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func crewInputs(folderID string) map[string]string {
	return map[string]string{
		"folder_id":    folderID,
		"current_year": currentYear(),
	}
}

// resolveFolder prefers the positional argument over GOOGLE_DRIVE_FOLDER_ID.
func resolveFolder(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		cfg.Drive.FolderID = strings.TrimSpace(args[0])
	}
	return cfg.Drive.FolderID
}

func requireConfig(vctx config.ValidationContext) error {
	result := cfg.Validate(vctx)
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	if result.HasErrors() {
		fmt.Fprint(os.Stderr, result.Error())
		return errReported
	}
	return nil
}
