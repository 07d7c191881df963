// Command blockd runs the block management daemon: a peer RPC server that
// applies node-local iSCSI configuration, and, on any node handling admin
// requests, the orchestrator plus its admin RPC listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/internal/telemetry"
	"github.com/blockd/blockd/pkg/blockmeta"
	"github.com/blockd/blockd/pkg/blockmeta/archive"
	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/capability"
	"github.com/blockd/blockd/pkg/config"
	"github.com/blockd/blockd/pkg/fanout"
	"github.com/blockd/blockd/pkg/iscsi"
	"github.com/blockd/blockd/pkg/metrics"
	"github.com/blockd/blockd/pkg/orchestrator"
	"github.com/blockd/blockd/pkg/registry"
	"github.com/blockd/blockd/pkg/render"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `blockd - block management daemon

Usage:
  blockd <command> [flags]

Commands:
  init     Write a sample configuration file
  start    Start the daemon
  version  Show version information

Flags:
  --config string   Path to config file (default: $XDG_CONFIG_HOME/blockd/config.yaml)
  --force           Overwrite an existing config file (init command only)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
	case "version", "--version", "-v":
		fmt.Printf("blockd %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
}

func writeJSONResult(w http.ResponseWriter, r *render.Result) {
	w.Header().Set("Content-Type", "application/json")
	if r == nil || r.Status != "SUCCESS" {
		w.WriteHeader(http.StatusNotFound)
	}
	_ = render.JSON(w, r)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := fs.String("config", "", "path to config file")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	path := *configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if !*force {
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("config file already exists at %s (use --force to overwrite)", path)
		}
	}
	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		log.Fatalf("write config: %v", err)
	}
	fmt.Printf("wrote default configuration to %s\n", path)
}

func runStart() {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := fs.String("config", "", "path to config file")
	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       true,
		SampleRate:     cfg.Telemetry.SampleFraction,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Profiling.Enabled,
		ServiceName:    cfg.Profiling.ApplicationName,
		ServiceVersion: version,
		Endpoint:       cfg.Profiling.ServerAddress,
	})
	if err != nil {
		log.Fatalf("init profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	store := blockmeta.NewStore(cfg.Meta.Root)
	rpcMetrics := metrics.NewRPCMetrics()
	fanoutMetrics := metrics.NewFanoutMetrics()
	orchMetrics := metrics.NewOrchestratorMetrics()

	client := blockrpc.NewClient(cfg.RPC.Port, cfg.RPC.DialTimeout, cfg.RPC.CallTimeout, rpcMetrics)

	capCache, err := capability.OpenCache(cfg.Capability.CacheDir)
	if err != nil {
		log.Fatalf("open capability cache: %v", err)
	}
	defer func() {
		if err := capCache.Close(); err != nil {
			logger.Error("capability cache close error", "error", err)
		}
	}()
	capability.SetDefaultTTL(cfg.Capability.TTL)
	negotiator := capability.NewNegotiator(client, capCache, rpcMetrics)

	fx := fanout.NewExecutor(client, store, fanoutMetrics)

	orch := orchestrator.New(store, client, negotiator, fx, orchMetrics)
	orch.ProbeTimeout = cfg.RPC.DialTimeout

	if cfg.Archive.Enabled {
		archiver, err := archive.NewFromConfig(ctx, archive.Config{
			Bucket: cfg.Archive.Bucket, Prefix: cfg.Archive.Prefix,
			Region: cfg.Archive.Region, Endpoint: cfg.Archive.Endpoint,
			ForcePathStyle: cfg.Archive.Endpoint != "",
		})
		if err != nil {
			log.Fatalf("init archiver: %v", err)
		}
		orch.Archiver = archiver
		logger.Info("metadata log archival enabled", "bucket", cfg.Archive.Bucket)
	} else {
		logger.Info("metadata log archival disabled")
	}

	var peerRegistry *registry.Store
	if cfg.Registry.Enabled {
		peerRegistry, err = registry.Open(ctx, registry.Config{DSN: cfg.Registry.DSN})
		if err != nil {
			log.Fatalf("open peer registry: %v", err)
		}
		defer func() {
			if err := peerRegistry.Close(); err != nil {
				logger.Error("peer registry close error", "error", err)
			}
		}()
		logger.Info("peer registry enabled")
	} else {
		logger.Info("peer registry disabled")
	}

	var configurator iscsi.Configurator
	if cfg.ISCSI.Fake {
		configurator = iscsi.NewFake(cfg.ISCSI.Host, cfg.ISCSI.Port)
	} else {
		configurator = iscsi.NewTargetCLI(cfg.ISCSI.TargetCLIPath, cfg.ISCSI.Host, cfg.ISCSI.Port, cfg.ISCSI.CommandTimeout)
	}
	peerServer := blockrpc.NewServer(store, configurator)

	peerLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPC.Port))
	if err != nil {
		log.Fatalf("listen on peer rpc port %d: %v", cfg.RPC.Port, err)
	}
	peerDone := make(chan error, 1)
	go func() { peerDone <- peerServer.Serve(ctx, peerLn) }()
	logger.Info("peer rpc listening", "addr", peerLn.Addr().String())

	adminServer := blockrpc.NewAdminServer(orch)
	adminLn, err := net.Listen("tcp", cfg.RPC.AdminAddr)
	if err != nil {
		log.Fatalf("listen on admin rpc addr %s: %v", cfg.RPC.AdminAddr, err)
	}
	adminDone := make(chan error, 1)
	go func() { adminDone <- adminServer.Serve(ctx, adminLn) }()
	logger.Info("admin rpc listening", "addr", adminLn.Addr().String())

	var httpSrv *http.Server
	httpDone := make(chan error, 1)
	if cfg.Metrics.Enabled {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(10 * time.Second))

		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
		r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
			if peerRegistry != nil {
				if err := peerRegistry.Healthcheck(req.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
			}
			w.WriteHeader(http.StatusOK)
		})

		// Read-only JSON mirror of list_cli/info_cli for tooling that
		// would rather poll HTTP than speak the admin RPC protocol.
		r.Get("/v1/volumes/{volume}/blocks", func(w http.ResponseWriter, req *http.Request) {
			volume := chi.URLParam(req, "volume")
			all := req.URL.Query().Get("all") == "true"
			blocks, err := orch.List(req.Context(), volume, all)
			var result *render.Result
			if err != nil {
				result = orchestrator.Fail(volume, "", err)
			} else {
				result = orchestrator.ListResult(volume, blocks)
			}
			writeJSONResult(w, result)
		})
		r.Get("/v1/volumes/{volume}/blocks/{block}", func(w http.ResponseWriter, req *http.Request) {
			volume := chi.URLParam(req, "volume")
			block := chi.URLParam(req, "block")
			m, err := orch.Info(req.Context(), volume, block)
			var result *render.Result
			if err != nil {
				result = orchestrator.Fail(volume, block, err)
			} else {
				portals, iqn := orch.Portals(req.Context(), volume, m)
				result = orchestrator.InfoResult(m, portals, iqn)
			}
			writeJSONResult(w, result)
		})

		httpSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: r}
		go func() { httpDone <- httpSrv.ListenAndServe() }()
		logger.Info("metrics http listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("blockd started, press ctrl+c to stop")

	peerExited, adminExited := false, false
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
	case err := <-peerDone:
		peerExited = true
		if err != nil {
			logger.Error("peer rpc server exited", "error", err)
		}
	case err := <-adminDone:
		adminExited = true
		if err != nil {
			logger.Error("admin rpc server exited", "error", err)
		}
	}

	cancel()
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics http shutdown error", "error", err)
		}
	}

	if !peerExited {
		<-peerDone
	}
	if !adminExited {
		<-adminDone
	}
	logger.Info("blockd stopped")
}
