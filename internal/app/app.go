// Package app builds the client components from a config and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Lumosity23/studyRAG-sub001/internal/chat"
	"github.com/Lumosity23/studyRAG-sub001/internal/config"
	"github.com/Lumosity23/studyRAG-sub001/internal/library"
	"github.com/Lumosity23/studyRAG-sub001/internal/realtime"
	"github.com/Lumosity23/studyRAG-sub001/internal/registry"
	"github.com/Lumosity23/studyRAG-sub001/internal/store"
	"github.com/Lumosity23/studyRAG-sub001/internal/transport"
	"github.com/Lumosity23/studyRAG-sub001/internal/upload"
	"github.com/Lumosity23/studyRAG-sub001/internal/watcher"
	"github.com/Lumosity23/studyRAG-sub001/pkg/utils"
	"go.uber.org/zap"
)

// App holds every component of the client. All of them share one Store.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    *store.Store
	Client   *transport.Client
	Bus      *realtime.Bus
	Realtime *realtime.Manager
	Registry *registry.Registry
	Chat     *chat.Orchestrator
	Uploads  *upload.Orchestrator
	Library  *library.Library

	unsubscribe []func()
	watcher     *watcher.Watcher
}

// Option configures New.
type Option func(*options)

type options struct {
	dialer     transport.Dialer
	httpClient *http.Client
}

// WithDialer replaces the websocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithHTTPClient replaces the HTTP client. Its timeout is left as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New wires the components. Nothing touches the network until Start or an
// orchestrator call.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = utils.OrNop(logger)
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Server.RequestTimeout}
	}
	clientOpts := []transport.ClientOption{transport.WithHTTPClient(hc), transport.WithLogger(logger.Named("transport"))}
	if o.dialer != nil {
		clientOpts = append(clientOpts, transport.WithDialer(o.dialer))
	}

	a := &App{Config: cfg, Logger: logger, Store: store.New(), Bus: realtime.NewBus()}
	a.Client = transport.NewClient(cfg.Server.APIBaseURL, cfg.PushURL(), clientOpts...)

	reg, err := registry.New(a.Client, a.Store, registry.WithLogger(logger.Named("registry")))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize conversation registry: %w", err)
	}
	a.Registry = reg
	a.Chat = chat.New(a.Client, a.Store, reg, chat.WithLogger(logger.Named("chat")))
	a.Uploads = upload.New(a.Client, a.Store,
		upload.WithLogger(logger.Named("upload")),
		upload.WithValidator(upload.NewValidator(cfg.Upload.Extensions, cfg.Upload.MaxFileSize)),
		upload.WithPollInterval(cfg.Upload.PollInterval),
		upload.WithRealtimeGrace(cfg.Upload.RealtimeGrace),
	)
	a.Library = library.New(a.Client, a.Store,
		library.WithLogger(logger.Named("library")),
		library.WithTracker(a.Uploads),
	)
	a.Realtime = realtime.NewManager(a.Client, a.Store,
		realtime.WithLogger(logger.Named("realtime")),
		realtime.WithBus(a.Bus),
		realtime.WithBackoff(realtime.Backoff{
			Initial: cfg.Realtime.InitialBackoff,
			Max:     cfg.Realtime.MaxBackoff,
			Jitter:  cfg.Realtime.Jitter,
		}),
	)
	a.unsubscribe = append(a.unsubscribe,
		a.Bus.Subscribe(a.Uploads),
		a.Bus.Subscribe(a.Library),
	)
	return a, nil
}

// Start opens the push channel when it is enabled.
func (a *App) Start(ctx context.Context) error {
	if !a.Config.Realtime.EnabledOrDefault() {
		a.Logger.Info("push channel disabled; uploads are tracked by polling")
		return nil
	}
	return a.Realtime.Connect(ctx)
}

// Watch starts the watch folder over dirs, falling back to the configured
// directories, and uploads the files already present.
func (a *App) Watch(ctx context.Context, dirs []string) (*watcher.Watcher, error) {
	if len(dirs) == 0 {
		dirs = a.Config.Watch.Directories
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no directories to watch")
	}
	w := watcher.New(dirs, a.Uploads,
		watcher.WithLogger(a.Logger.Named("watcher")),
		watcher.WithExtensions(a.Config.Watch.Extensions),
		watcher.WithRecursive(a.Config.Watch.RecursiveOrDefault()),
		watcher.WithMaxFileSize(a.Config.Upload.MaxFileSize),
	)
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	a.watcher = w
	w.SyncExistingFiles()
	return w, nil
}

// Close stops the watcher, the push channel and all pollers.
func (a *App) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if err := a.Realtime.Close(); err != nil {
		a.Logger.Debug("close push channel", zap.Error(err))
	}
	for _, unsubscribe := range a.unsubscribe {
		unsubscribe()
	}
	a.Uploads.Close()
	a.Library.Close()
	if err := a.Registry.Close(); err != nil {
		a.Logger.Debug("close registry", zap.Error(err))
	}
}
