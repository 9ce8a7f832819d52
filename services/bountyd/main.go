package bountyd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gitbounty/config"
	"gitbounty/core/state"
	"gitbounty/native/bounty"
	"gitbounty/native/verify"
	"gitbounty/observability"
	"gitbounty/observability/logging"
	telemetry "gitbounty/observability/otel"
	"gitbounty/oracle"
	"gitbounty/rpc"
	"gitbounty/storage"
)

// defaultScriptSource is the verification script shipped with the daemon.
// The oracle network executes it off-chain; the repo's verifierd service
// implements the same contract natively, so the blob here is primarily an
// auditable record of what the network runs.
const defaultScriptSource = `const [owner, repo, prNumber, issueId] = args;
const pr = await github.pullRequest(owner, repo, Number(prNumber));
const linked = /(closes|fixes|resolves)\s+#/i.test(pr.body) && pr.body.match(new RegExp("#" + issueId + "\\b"));
return abi.encode(["bool", "string"], [pr.merged && Boolean(linked), pr.author.login]);`

// Main runs the bounty ledger daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config/bountyd.toml", "path to bountyd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("GITBOUNTY_ENV"))
	}
	logger := logging.Setup("bountyd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "bountyd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	owner, err := cfg.Owner()
	if err != nil {
		return err
	}
	scriptSource, err := cfg.ScriptSource(defaultScriptSource)
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer func() { _ = db.Close() }()

	manager := state.NewManager(db)
	pauses := state.NewPauseRegistry()

	collector := observability.NewEventCollector()

	engine := bounty.NewEngine(owner)
	engine.SetState(manager)
	engine.SetPauses(pauses)
	engine.SetEmitter(collector)

	coordinator := verify.NewCoordinator(owner, scriptSource)
	coordinator.SetState(manager)
	coordinator.SetEmitter(collector)

	secrets := oracle.NewSecretStore()
	dispatcher := oracle.NewDispatcher(&http.Client{Timeout: 30 * time.Second}, cfg.VerifierURL, secrets, logger)
	dispatcher.SetHandler(coordinator)
	coordinator.SetTransport(dispatcher)

	if err := coordinator.SetLedger(owner, engine, engine.ModuleAddress()); err != nil {
		return fmt.Errorf("wire ledger: %w", err)
	}
	if err := engine.SetCoordinator(owner, coordinator, coordinator.ModuleAddress()); err != nil {
		return fmt.Errorf("wire coordinator: %w", err)
	}
	if cfg.SecretsVersion != 0 {
		if err := engine.UpdateSecrets(owner, cfg.SecretsSlot, cfg.SecretsVersion); err != nil {
			return fmt.Errorf("seed secret coordinates: %w", err)
		}
	}

	auth := rpc.NewAuthenticator(rpc.AuthConfig{
		Enabled:    strings.TrimSpace(cfg.AdminJWTSecret) != "",
		HMACSecret: cfg.AdminJWTSecret,
		Issuer:     cfg.AdminJWTIssuer,
	}, logger)
	server := rpc.NewServer(engine, manager, pauses, secrets, auth, logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server.Router(), "bountyd"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		log.Printf("bountyd listening on %s", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		dispatcher.Wait()
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
