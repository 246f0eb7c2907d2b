// rbrb-counter-demo is a headless two-(or-more)-player counter game: every
// player can increment or decrement a single shared counter, gated by a
// per-player cooldown, kept in lockstep across peers via rbrb.Session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lockstepnet/rbrb"
	"github.com/lockstepnet/rbrb/internal/config"
	rbrbmetrics "github.com/lockstepnet/rbrb/internal/metrics"
	"github.com/lockstepnet/rbrb/internal/netio"
	appversion "github.com/lockstepnet/rbrb/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("rbrb-counter-demo starting",
		slog.String("version", appversion.Version),
		slog.Int("local_player", int(cfg.Session.LocalPlayer)),
		slog.Int("local_port", int(cfg.Session.LocalPort)),
		slog.String("metrics_addr", cfg.Metrics.Addr))

	reg := prometheus.NewRegistry()
	collector := rbrbmetrics.NewCollector(reg)
	status := newStatusTracker(rbrb.PlayerId(cfg.Session.LocalPlayer))

	session, err := startSession(cfg, logger, collector)
	if err != nil {
		logger.Error("failed to start session", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg, status)
	g.Go(func() error {
		return listenAndServe(gCtx, &net.ListenConfig{}, metricsSrv, cfg.Metrics.Addr)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		runGameLoop(gCtx, session, cfg, collector, status, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("rbrb-counter-demo exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("rbrb-counter-demo stopped")
	return 0
}

// startSession parses the remote endpoints and brings up a Session,
// wrapping the default transport in the bad-network simulator when
// configured, and wiring the checksum-mismatch plugin to report every
// mismatch to collector before it brings the process down.
func startSession(cfg *config.Config, logger *slog.Logger, collector *rbrbmetrics.Collector) (*rbrb.Session, error) {
	remotes := make([]netip.AddrPort, 0, len(cfg.Session.RemotePlayers))
	for _, addr := range cfg.Session.RemotePlayers {
		ap, err := netip.ParseAddrPort(addr)
		if err != nil {
			return nil, fmt.Errorf("parse remote player address %q: %w", addr, err)
		}
		remotes = append(remotes, ap)
	}

	warner := rbrb.NewChecksumWarner(logger, remotes)
	warner.OnMismatch(collector.IncChecksumMismatch)

	builder := rbrb.NewSessionBuilder().
		RemotePlayers(remotes).
		LocalPlayer(rbrb.PlayerId(cfg.Session.LocalPlayer), cfg.Session.LocalPort).
		StepSize(cfg.Session.StepSize).
		DefaultInputs(marshalAction(actionNone)).
		WithLogger(logger).
		WithPlugin(warner)

	if cfg.Network.Simulate {
		transport, err := netio.BindUDP(cfg.Session.LocalPort, logger)
		if err != nil {
			return nil, fmt.Errorf("bind transport on port %d: %w", cfg.Session.LocalPort, err)
		}
		builder = builder.WithTransport(netio.NewBadNetworkWithParams(transport, cfg.Network.SuccessChance, cfg.Network.MeanLag))
	}

	session, err := builder.Start()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return session, nil
}

// runGameLoop drives the session until ctx is cancelled. Each poll handles
// at most one request from NextRequest, reports the confirmation horizon
// and rollback distance to the metrics collector, and idles briefly before
// the next poll.
func runGameLoop(ctx context.Context, session *rbrb.Session, cfg *config.Config, collector *rbrbmetrics.Collector, status *statusTracker, logger *slog.Logger) {
	state := newGameState()
	input := newLocalInput(2*time.Second, actionIncrement)
	lastHostFrame := session.HostFrame()
	remoteAddrs := session.RemoteAddrs()

	idle := cfg.Session.StepSize / 4
	if idle <= 0 {
		idle = time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		_, _ = rbrb.NextRequest(session, now, func(req rbrb.Request) (struct{}, bool) {
			switch req.Kind {
			case rbrb.KindSaveTo:
				req.Commit(state.marshal())

			case rbrb.KindLoadFrom:
				if rollback := int(lastHostFrame) - int(req.CurrentFrame); rollback > 0 {
					collector.ObserveRollback(rollback)
				}
				if err := state.unmarshal(req.State); err != nil {
					logger.Error("failed to restore game state", slog.String("error", err.Error()))
				}

			case rbrb.KindCaptureLocalInput:
				req.Commit(marshalAction(input.capture(now)))

			case rbrb.KindAdvance:
				actions := make(map[rbrb.PlayerId]action, req.Inputs.Len())
				req.Inputs.Range(func(id rbrb.PlayerId, c rbrb.Confirmation[[]byte]) {
					actions[id] = unmarshalAction(c.Value)
				})
				state.advance(req.Amount, actions)

				if req.Confirmed == rbrb.AdvanceFirstConfirm {
					logger.Debug("frame confirmed",
						slog.Any("frame", req.CurrentFrame),
						slog.Int("value", state.Value))
				}
			}
			return struct{}{}, true
		})

		lastHostFrame = session.HostFrame()
		collector.SetConfirmationLag(int(lastHostFrame) - int(session.Unconfirmed()))
		for id, rtt := range session.PeerRTTs() {
			if addr, ok := remoteAddrs[id]; ok {
				collector.SetRTT(addr, rtt.Seconds())
			}
		}
		status.publish(lastHostFrame, session.Unconfirmed(), state.Value)

		select {
		case <-ctx.Done():
			return
		case <-time.After(idle):
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, status *statusTracker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/status", status.handler())
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}
