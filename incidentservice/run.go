// Package incidentservice wires the incident core into an HTTP service.
package incidentservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rightsguard/incident-core/internal/api"
	"github.com/rightsguard/incident-core/internal/appstate"
	"github.com/rightsguard/incident-core/internal/config"
	"github.com/rightsguard/incident-core/internal/health"
	"github.com/rightsguard/incident-core/internal/incidentlog"
	"github.com/rightsguard/incident-core/internal/kvstore"
	"github.com/rightsguard/incident-core/internal/localstate"
	"github.com/rightsguard/incident-core/internal/logger"
	"github.com/rightsguard/incident-core/internal/notify"
	"github.com/rightsguard/incident-core/internal/pinning"
	"github.com/rightsguard/incident-core/internal/probe"
	"github.com/rightsguard/incident-core/internal/recording"
	"github.com/rightsguard/incident-core/internal/shardqueue"
	"github.com/rightsguard/incident-core/internal/summary"
)

// Run starts the incident service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("incident-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	return RunWithConfig(cfg, log)
}

// RunWithConfig is Run with an explicit configuration.
func RunWithConfig(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("store_driver", cfg.StoreDriver).
		Int("http_port", cfg.HTTPPort).
		Msg("Incident service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	kv, closer, err := newStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	app, err := newApp(ctx, cfg, kv, log)
	if err != nil {
		return err
	}
	defer app.close(log)

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, kv)
	app.handler.Healthy = svcHealth.IsHealthy
	app.handler.Components = svcHealth.Components

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, api.NewRouter(app.handler))
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// app holds the wired components.
type app struct {
	queue   *shardqueue.Executor
	state   *appstate.Store
	session *recording.Session
	handler *api.Handler
}

func newApp(ctx context.Context, cfg *config.Config, kv *kvstore.Store, log zerolog.Logger) (*app, error) {
	qcfg, err := shardqueue.LoadConfig()
	if err != nil {
		return nil, err
	}
	qlog := logger.Component(log, "persist-queue")
	qcfg.MaxAttempts = cfg.PersistMaxAttempts
	qcfg.ErrorHandler = func(key string, err error) {
		qlog.Error().Err(err).Str("key", key).Msg("state snapshot not persisted")
	}
	queue := shardqueue.New(qcfg, qlog)

	state := appstate.New(ctx, kv, cfg.StateKey, queue, log)
	incidents := incidentlog.New(ctx, kv, cfg.IncidentsKey, log)
	if _, err := state.Dispatch(ctx, appstate.ReplaceIncidentLog(incidents.List())); err != nil {
		log.Warn().Err(err).Msg("incident log not mirrored into app state")
	}

	pin := newPinningClient(cfg)
	if cfg.PinningConfigured() {
		go func() {
			actx, cancel := context.WithTimeout(ctx, cfg.ChannelTimeout)
			defer cancel()
			if err := pin.TestAuthentication(actx); err != nil {
				log.Warn().Err(err).Msg("pinning authentication failed; recordings fall back to local files")
			}
		}()
	}

	sealer := newSealer(cfg, pin)

	locations := probe.NewReportedLocation(nil)
	device := probe.NewRelayDevice()
	session := recording.New(recording.Config{
		LocationTimeout: cfg.LocationTimeout,
		DeviceTimeout:   cfg.DeviceTimeout,
		LocationOptions: probe.LocationOptions{HighAccuracy: true, MaxAge: cfg.LocationMaxAge},
		CaptureOptions:  probe.DefaultCaptureOptions(),
		MaxBufferBytes:  cfg.MaxCaptureBytes,
	}, locations, device, incidents, state, sealer, log)

	clipboard := notify.NewMemoryClipboard()
	ncfg := notify.Config{Clipboard: clipboard, Timeout: cfg.ChannelTimeout, Origin: cfg.AppOrigin}
	if cfg.ShareURL != "" {
		ncfg.Share = notify.NewShareRelay(cfg.ShareURL, cfg.ChannelTimeout)
	}
	if cfg.SMSGatewayURL != "" {
		ncfg.Direct = append(ncfg.Direct, notify.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSFrom, cfg.ChannelTimeout))
	}
	if cfg.EmailGatewayURL != "" {
		ncfg.Direct = append(ncfg.Direct, notify.NewEmailGateway(cfg.EmailGatewayURL, cfg.EmailAPIKey, cfg.EmailFrom, cfg.ChannelTimeout))
	}
	if cfg.SummaryAPIKey != "" {
		ncfg.Summary = summary.New(summary.Config{
			BaseURL: cfg.SummaryURL,
			APIKey:  cfg.SummaryAPIKey,
			Model:   cfg.SummaryModel,
			Timeout: cfg.ChannelTimeout,
		})
	}

	handler := api.NewHandler(api.Deps{
		State:     state,
		Incidents: incidents,
		Session:   session,
		Locations: locations,
		Device:    device,
		Notifier:  notify.New(ncfg, log),
		Clipboard: clipboard,
		Exporter:  pin,
		Log:       log,
	})
	return &app{queue: queue, state: state, session: session, handler: handler}, nil
}

// newPinningClient bounds every upload by PinningTimeout so a seal during
// stop or shutdown cannot outlast the server's write deadline.
func newPinningClient(cfg *config.Config) *pinning.Client {
	return pinning.New(pinning.Config{
		BaseURL:   cfg.PinningURL,
		Gateway:   cfg.PinningGateway,
		APIKey:    cfg.PinningAPIKey,
		APISecret: cfg.PinningAPISecret,
		Timeout:   cfg.PinningTimeout,
	})
}

// newSealer prefers pinning and falls back to local files.
func newSealer(cfg *config.Config, pin *pinning.Client) recording.Sealer {
	dir, err := localstate.RecordingsDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "rightsguard-recordings")
	}
	if cfg.PinningConfigured() {
		return recording.FallbackSealer{pin, recording.NewFileSealer(dir)}
	}
	return recording.NewFileSealer(dir)
}

// close finalizes a running capture and flushes pending state writes.
func (a *app) close(log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.session.Status().Phase == recording.PhaseActive {
		if _, err := a.session.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("active capture not finalized on shutdown")
		}
	}
	if err := a.state.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("state flush failed")
	}
	a.queue.Stop()
}

// startHealthCheckers starts the store checker and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, kv *kvstore.Store) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	storeChecker := health.NewPingChecker("store", kv, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// session start waits on both probes
		WriteTimeout: cfg.LocationTimeout + cfg.DeviceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 30 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 30 {
		return 30
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
