package cmd

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/admin"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/bindrt"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/xds"
	celeval "github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/cel"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/certstore"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/discoverydb"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/localconfig"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/drain"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/hbonepool"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/httpproxy"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/jwtauth"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/mcprelay"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/store"
	"github.com/Sentinel-Gate/Sentinelgate/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway data plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.GatewayConfig) error {
	levelVar := new(slog.LevelVar)
	_ = levelVar.UnmarshalText([]byte(cfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, "sentinel-gate")
	if err != nil {
		return fmt.Errorf("start telemetry providers: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("serve: telemetry shutdown failed", "error", err)
		}
	}()

	st := store.New()
	discoStore := discovery.New()
	d := drain.New()
	metrics := telemetry.NewMetrics()

	var db *discoverydb.DB
	if cfg.DiscoveryDBPath != "" {
		var err error
		db, err = discoverydb.Open(cfg.DiscoveryDBPath)
		if err != nil {
			return fmt.Errorf("open discovery db: %w", err)
		}
		defer db.Close()
		if err := db.LoadDiscoverySnapshot(ctx, discoStore); err != nil {
			logger.Warn("serve: could not load discovery snapshot", "error", err)
		}
	}

	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return fmt.Errorf("create cel evaluator: %w", err)
	}

	rt := bindrt.New(st, discoStore, d).Logger(logger)
	rt.Metrics = metrics.Bind
	rt.Deadlines = bindrt.TerminationDeadlines{Min: 5 * time.Second, Max: 30 * time.Second}

	if cfg.TLS.CertDir != "" {
		rt.Certs = certstore.NewFileResolver(cfg.TLS.CertDir)
	}

	var hbonePool *hbonepool.Pool
	if cfg.TLS.WorkloadCert != "" && cfg.TLS.WorkloadKey != "" {
		workload := certstore.NewStaticWorkloadIdentity(cfg.TLS.WorkloadCert, cfg.TLS.WorkloadKey, cfg.TLS.AcceptedPeerIdentities)
		rt.Workload = workload

		// Outbound HBONE dials present the same workload certificate this
		// gateway terminates inbound mTLS with; GetClientCertificate defers
		// to StaticWorkloadIdentity so a rotated cert picks up without a
		// pool restart.
		tlsBase := &tls.Config{
			GetClientCertificate: func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
				return workload.ServerCertificate()
			},
		}
		hbonePool = hbonepool.New(hbonepool.DefaultParams(), tlsBase)
		defer hbonePool.Close()
	}

	rateLimiter := memory.NewRateLimiter()
	defer rateLimiter.Stop()

	relay := &mcprelay.Relay{
		Policies:     st,
		CELEvaluator: evaluator,
		Logger:       logger,
		JWKSSources:  func(provider string) jwtauth.KeySetSource { return jwtauth.NewJWKSSource(provider) },
	}

	sup := &bindSupervisor{
		rt:     rt,
		store:  st,
		logger: logger,
		buildPipeline: func(bind *store.Bind) *httpproxy.Pipeline {
			return &httpproxy.Pipeline{
				Store:         st,
				Discovery:     discoStore,
				Clients:       httpproxy.NewClientPool(hbonePool),
				RateLimiter:   rateLimiter,
				TokenCharger:  rateLimiter,
				CELEvaluator:  evaluator,
				MCP:           relay,
				Metrics:       metrics.HTTPProxy,
				LocalLocality: rt.LocalLocality,
				AWSRegion:     cfg.AWSRegion,
				GatewayName:   "sentinel-gate",
				BindKey:       bind.Key,
				JWKSSources:   func(p *store.Policy) jwtauth.KeySetSource { return jwtauth.NewJWKSSource(p.JWKSURI) },
			}
		},
	}
	sup.start(ctx)

	var wg sync.WaitGroup

	if cfg.LocalConfigPath != "" {
		loader := localconfig.NewLoader(cfg.LocalConfigPath, st).Logger(logger)
		if err := loader.Load(); err != nil {
			return fmt.Errorf("load local config: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("serve: local config watch failed", "error", err)
			}
		}()
	}

	xdsHandler := xds.NewHandler(st, discoStore).Logger(logger)

	var persist admin.ConfigDumpPersister
	if db != nil {
		persist = admin.DBPersister{DB: db}
	}
	adminHandler := &admin.Handler{
		Store:      st,
		Drain:      d,
		LevelVar:   levelVar,
		Persist:    persist,
		Logger:     logger,
		Version:    Version,
		APIKeyHash: cfg.Admin.APIKeyHash,
	}
	adminMux := adminHandler.Mux()
	adminMux.Handle("POST /xds/config", xdsIngestHandler(func(resources []xds.ConfigResource) []xds.Result {
		return xdsHandler.ApplyConfig(resources)
	}))
	adminMux.Handle("POST /xds/addresses", xdsAddressIngestHandler(xdsHandler))
	adminSrv := &http.Server{Addr: cfg.Admin.Addr, Handler: adminMux, ReadHeaderTimeout: 5 * time.Second}

	metricsSrv := telemetry.NewServer(cfg.Metrics.Addr, metrics)

	readinessSrv := &http.Server{Addr: cfg.Readiness.Addr, Handler: readinessMux(d), ReadHeaderTimeout: 5 * time.Second}

	wg.Add(3)
	go func() { defer wg.Done(); serveUntilDone(ctx, logger, "admin", adminSrv) }()
	go func() { defer wg.Done(); serveUntilDone(ctx, logger, "metrics", metricsSrv) }()
	go func() { defer wg.Done(); serveUntilDone(ctx, logger, "readiness", readinessSrv) }()

	<-ctx.Done()
	logger.Info("serve: shutdown signal received, draining")
	d.StartDrainAndWait(drain.ModeGraceful)
	wg.Wait()
	return nil
}

func serveUntilDone(ctx context.Context, logger *slog.Logger, name string, srv *http.Server) {
	if err := telemetry.Serve(ctx, srv); err != nil && err != http.ErrServerClosed {
		logger.Error("serve: http surface stopped", "surface", name, "error", err)
	}
}

// bindSupervisor starts a bindrt.Runtime goroutine for every store.Bind,
// including ones inserted after startup by a local-config reload. It does
// not stop a goroutine when its bind is removed: Run exits on its own once
// ctx is cancelled, and a removed bind's pipeline simply stops matching any
// new inbound request's listener lookup.
type bindSupervisor struct {
	rt            *bindrt.Runtime
	store         *store.Store
	logger        *slog.Logger
	buildPipeline func(bind *store.Bind) *httpproxy.Pipeline

	mu      sync.Mutex
	started map[string]bool
}

func (s *bindSupervisor) start(ctx context.Context) {
	s.started = map[string]bool{}

	events, _, unsubscribe := s.store.Subscribe()
	for _, bind := range s.store.All() {
		s.launch(ctx, bind)
	}
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Kind == store.EventAdd {
					s.launch(ctx, ev.Bind)
				}
			}
		}
	}()
}

func (s *bindSupervisor) launch(ctx context.Context, bind *store.Bind) {
	s.mu.Lock()
	if s.started[bind.Key] {
		s.mu.Unlock()
		return
	}
	s.started[bind.Key] = true
	s.mu.Unlock()

	s.rt.RegisterPipeline(bind.Key, s.buildPipeline(bind))
	go func() {
		if err := s.rt.Run(ctx, bind); err != nil && ctx.Err() == nil {
			s.logger.Error("serve: bind terminated", "bind", bind.Key, "error", err)
		}
	}()
}

func readinessMux(d *drain.Drain) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Draining() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// xdsIngestHandler wraps a minimal HTTP POST transport around
// xds.Handler.ApplyConfig: the delta-xDS/ADS gRPC stream is an external
// collaborator this gateway does not implement, so a control plane that
// wants to push config posts the same decoded resources here instead.
func xdsIngestHandler(apply func([]xds.ConfigResource) []xds.Result) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resources []xds.ConfigResource
		if err := json.NewDecoder(r.Body).Decode(&resources); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		results := apply(resources)
		writeXDSResults(w, results)
	})
}

func xdsAddressIngestHandler(h *xds.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resources []xds.AddressResource
		if err := json.NewDecoder(r.Body).Decode(&resources); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		results := h.ApplyAddresses(resources)
		writeXDSResults(w, results)
	})
}

func writeXDSResults(w http.ResponseWriter, results []xds.Result) {
	type wireResult struct {
		Name  string `json:"name"`
		Error string `json:"error,omitempty"`
	}
	out := make([]wireResult, len(results))
	status := http.StatusOK
	for i, r := range results {
		out[i] = wireResult{Name: r.Name}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
			status = http.StatusConflict
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}
