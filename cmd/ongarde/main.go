// Package main wires the proxy's components together into a running
// process: load config, build the scanner/auth/audit/allowlist stack,
// calibrate the NLP sync threshold, and start the listener described in
// §5's concurrency and keep-alive model.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ongarde/ongarde/internal/allowlist"
	"github.com/ongarde/ongarde/internal/audit"
	"github.com/ongarde/ongarde/internal/auth"
	"github.com/ongarde/ongarde/internal/config"
	"github.com/ongarde/ongarde/internal/dashboard"
	"github.com/ongarde/ongarde/internal/health"
	"github.com/ongarde/ongarde/internal/logging"
	"github.com/ongarde/ongarde/internal/nlp"
	"github.com/ongarde/ongarde/internal/proxy"
	"github.com/ongarde/ongarde/internal/scan"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults to $ONGARDE_HOME/config.yaml)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ongarde v%s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "ongarde:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	path := configPath
	if path == "" {
		if resolved := config.ResolvePath(); fileExists(resolved) {
			path = resolved
		}
	} else if !fileExists(path) {
		return fmt.Errorf("config file %s does not exist", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.HomeDir, 0o700); err != nil {
		return fmt.Errorf("creating home dir: %w", err)
	}

	log, err := logging.New(logging.Config{Path: cfg.Logging.Path, Debug: cfg.Logging.Debug})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	log.Info("ongarde starting", zap.String("version", Version), zap.String("build_time", BuildTime),
		zap.Int("port", cfg.Proxy.Port), zap.String("scanner_mode", cfg.Scanner.Mode), zap.Bool("auth_required", cfg.AuthRequired))
	if cfg.StrictMode {
		log.Warn("strict_mode is set but has no effect in this build")
	}

	scanner := scan.NewEngine()

	var nlpScanner *nlp.Scanner
	if cfg.Scanner.Mode == "lite" {
		nlpScanner = nlp.NewLiteScanner()
	} else {
		nlpScanner = nlp.NewScanner()
	}
	calibration := nlp.Calibrate(nlpScanner)
	log.Info("nlp scanner calibrated", zap.String("mode", nlpScanner.Mode()),
		zap.Int("sync_threshold", calibration.SyncThreshold), zap.Duration("timeout", calibration.Timeout))

	allowPath := cfg.Allowlist.Path
	allow := allowlist.New()
	allow.OnReload(func(count int) { log.Info("allowlist reloaded", zap.Int("entries", count)) })
	if n := allow.Load(allowPath); n < 0 {
		log.Warn("initial allowlist load failed, starting with an empty allowlist", zap.String("path", allowPath))
	}
	stopWatch, err := allowlist.Watch(allow, allowPath, log)
	if err != nil {
		log.Warn("allowlist file watcher failed to start, reload requires a restart", zap.Error(err))
	}
	defer stopWatch()

	keys, err := auth.Open(filepath.Join(cfg.HomeDir, "keys.db"))
	if err != nil {
		return fmt.Errorf("opening key store: %w", err)
	}
	defer keys.Close()
	if keys.Empty() {
		log.Warn("no API keys provisioned yet; bootstrap one via the loopback dashboard before enabling auth_required")
	}

	signingKey, err := loadOrCreateSigningKey(filepath.Join(cfg.HomeDir, "audit.key"))
	if err != nil {
		return fmt.Errorf("loading audit signing key: %w", err)
	}
	signer := audit.NewSigner(signingKey)

	var aux audit.AuxSink
	if brokers := os.Getenv("ONGARDE_AUDIT_KAFKA_BROKERS"); brokers != "" {
		kafkaCfg := audit.DefaultKafkaSinkConfig()
		kafkaCfg.Brokers = strings.Split(brokers, ",")
		if topic := os.Getenv("ONGARDE_AUDIT_KAFKA_TOPIC"); topic != "" {
			kafkaCfg.Topic = topic
		}
		sink, err := audit.NewKafkaSink(kafkaCfg, log)
		if err != nil {
			log.Warn("audit kafka mirror failed to start, continuing with sqlite only", zap.Error(err))
		} else {
			aux = sink
		}
	}

	auditSink, err := audit.Open(cfg.Audit.Path, signer, log, aux)
	if err != nil {
		return fmt.Errorf("opening audit sink: %w", err)
	}
	defer auditSink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go audit.RunRetentionPruner(ctx, auditSink, cfg.Audit.RetentionDays, log)

	poolWorkers := 1
	if cfg.Scanner.Mode == "lite" {
		poolWorkers = 0
	}
	hlth := health.NewState(nlpScanner.Mode(), poolWorkers)
	hlth.SetReady(calibration)

	engine := proxy.New(cfg, scanner, nlpScanner, calibration, allow, keys, auditSink, hlth, log)

	keyLimiter := auth.NewKeyManagementLimiter()
	defer keyLimiter.Stop()

	dash := &dashboard.Server{Audit: auditSink, Keys: keys, Allowlist: allow, Limiter: keyLimiter, Log: log}

	mux := http.NewServeMux()
	mux.Handle("/health", hlth.Handler())
	mux.Handle("/health/scanner", hlth.Handler())
	mux.Handle("/metrics", hlth.Handler())
	mux.Handle("/dashboard/api/", dashboard.RequireLoopback(log, dash.Handler()))
	mux.Handle("/v1/chat/completions", engine)
	mux.Handle("/v1/messages", engine)

	addr := fmt.Sprintf("%s:%d", cfg.Proxy.Host, cfg.Proxy.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           proxy.LimitConcurrency(proxy.ConcurrencyCap, mux),
		IdleTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := newBacklogListener(addr, 50)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	log.Info("ongarde listening", zap.String("addr", addr))

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown timed out", zap.Error(err))
	}
	return nil
}

// newBacklogListener opens a TCP listener with the §5 TCP backlog of 50.
// net.Listen always asks the kernel for SOMAXCONN, so the socket is built
// by hand here to pass the spec's own backlog value to listen(2).
func newBacklogListener(addr string, backlog int) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("setsockopt: %w", err)
	}

	var sa syscall.SockaddrInet4
	sa.Port = tcpAddr.Port
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := syscall.Bind(fd, &sa); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := syscall.Listen(fd, backlog); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	file := os.NewFile(uintptr(fd), "ongarde-listener")
	defer file.Close()
	return net.FileListener(file)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadOrCreateSigningKey returns the persistent HMAC key audit events are
// signed with, generating and storing a fresh 256-bit key on first run.
func loadOrCreateSigningKey(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("persisting signing key: %w", err)
	}
	return key, nil
}
