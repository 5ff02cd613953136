package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	qerrors "github.com/qshield/qshield-go/internal/errors"
	"github.com/qshield/qshield-go/pkg/lifecycle"
	"github.com/qshield/qshield-go/pkg/messaging"
	"github.com/qshield/qshield-go/pkg/observe"
)

type demoConfig struct {
	recipient   string
	message     string
	ttlSeconds  int
	store       string
	badgerPath  string
	verbose     bool
	metricsAddr string
	logLevel    string
	logFormat   string
	tracing     string
}

func runDemo(cfg demoConfig) {
	logger, tracer, collector := setupObservability(cfg.logLevel, cfg.logFormat, cfg.tracing)

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      QShield Self-Destructing Message Demo               ║")
	fmt.Println("║      Hybrid: Kyber512 + X25519 -> SHAKE-256              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	if cfg.verbose {
		fmt.Println("Security Properties:")
		fmt.Println("  • Post-Quantum: Kyber512 KEM")
		fmt.Println("  • Classical: X25519 ECDH (fresh ephemeral per message)")
		fmt.Println("  • Hybrid: key is secret if EITHER secret holds")
		fmt.Println("  • Lifecycle: destroyed on first read or TTL, whichever first")
		fmt.Println()
	}

	store := openStore(cfg, logger)
	mgr := lifecycle.NewManager(store,
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(collector),
		lifecycle.WithTracer(tracer),
	)
	defer func() { _ = mgr.Close() }()

	ctx := context.Background()
	mgr.StartSweeper(ctx)

	if cfg.metricsAddr != "" {
		exp := observe.NewPrometheusExporter(collector, "qshield")
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", exp.Handler())
			if err := http.ListenAndServe(cfg.metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", observe.Fields{"error": err.Error()})
			}
		}()
		fmt.Printf("✓ Prometheus metrics on %s/metrics\n", cfg.metricsAddr)
	}

	registry := messaging.NewKeyRegistry(collector)
	defer registry.Close()

	svc := messaging.NewService(registry, mgr,
		messaging.WithServiceLogger(logger),
		messaging.WithServiceMetrics(collector),
		messaging.WithServiceTracer(tracer),
	)

	// 1. Enroll the recipient.
	fmt.Printf("[1/5] Enrolling recipient %q...\n", cfg.recipient)
	if err := registry.Enroll(cfg.recipient, true); err != nil {
		fatal("enroll recipient", err)
	}
	if cfg.verbose {
		keys, _ := registry.PublicKeys(ctx, cfg.recipient)
		fmt.Printf("      Kyber public key: %d bytes\n", len(keys.KyberPublicKey))
		fmt.Printf("      X25519 public key: %d bytes\n", len(keys.X25519PublicKey))
	}

	// 2. Send.
	fmt.Printf("[2/5] Sending %d-byte message (TTL %ds)...\n", len(cfg.message), cfg.ttlSeconds)
	start := time.Now()
	res, err := svc.Send(ctx, messaging.SendRequest{
		RecipientID: cfg.recipient,
		Plaintext:   []byte(cfg.message),
		TTLSeconds:  cfg.ttlSeconds,
		TrustScore:  100,
	})
	if err != nil {
		fatal("send message", err)
	}
	fmt.Printf("      ✓ Token: %s (%.2fms, mode=%s)\n", res.Token, float64(time.Since(start).Microseconds())/1000, res.Mode)

	kyberPriv, x25519, err := registry.DecryptionKeys(cfg.recipient)
	if err != nil {
		fatal("load decryption keys", err)
	}

	// 3. Fetch without consuming.
	fmt.Println("[3/5] Fetching (non-destructive)...")
	msg, err := svc.FetchAndDecrypt(ctx, res.Token, kyberPriv, x25519.PrivateKey)
	if err != nil {
		fatal("fetch message", err)
	}
	fmt.Printf("      ✓ Plaintext: %q\n", msg.Plaintext)
	fmt.Printf("      ✓ TTL remaining: %s\n", msg.TTLRemaining.Round(time.Millisecond))

	// 4. Destructive read.
	fmt.Println("[4/5] Reading (destructive, at most once)...")
	if err := svc.MarkRead(ctx, res.Token); err != nil {
		fatal("mark read", err)
	}
	fmt.Println("      ✓ Message destroyed")

	// 5. Prove it is gone.
	fmt.Println("[5/5] Fetching again...")
	_, err = svc.FetchAndDecrypt(ctx, res.Token, kyberPriv, x25519.PrivateKey)
	if errors.Is(err, qerrors.ErrMessageNotFound) {
		fmt.Println("      ✓ Token unknown, as it should be")
	} else {
		fmt.Printf("      ✗ Unexpected result: %v\n", err)
	}

	fmt.Println()
	fmt.Println("Demo complete.")

	if cfg.verbose {
		snap := collector.Snapshot()
		fmt.Println()
		fmt.Println("Metrics:")
		fmt.Printf("  stored=%d fetched=%d read=%d expired=%d\n",
			snap.MessagesStored, snap.MessagesFetched, snap.MessagesRead, snap.MessagesExpired)
		fmt.Printf("  encrypt p50=%.0fµs decrypt p50=%.0fµs\n",
			snap.EncryptLatency.Percentiles[0.5], snap.DecryptLatency.Percentiles[0.5])
	}
}

func openStore(cfg demoConfig, logger *observe.Logger) lifecycle.Store {
	switch cfg.store {
	case "", "memory":
		return lifecycle.NewMemoryStore()
	case "badger":
		store, err := lifecycle.NewBadgerStore(lifecycle.BadgerOptions{
			Path:     cfg.badgerPath,
			InMemory: cfg.badgerPath == "",
			Logger:   observe.NewBadgerLogger(logger),
		})
		if err != nil {
			fatal("open badger store", err)
		}
		return store
	default:
		fmt.Fprintf(os.Stderr, "Unknown store %q (use 'memory' or 'badger')\n", cfg.store)
		os.Exit(1)
		return nil
	}
}

func setupObservability(logLevel, logFormat, tracing string) (*observe.Logger, observe.Tracer, *observe.Collector) {
	format := observe.FormatText
	if logFormat == "json" {
		format = observe.FormatJSON
	}
	logger := observe.NewLogger(
		observe.WithOutput(os.Stderr),
		observe.WithLevel(observe.ParseLevel(logLevel)),
		observe.WithFormat(format),
		observe.WithName("qshield"),
	)

	var tracer observe.Tracer
	switch tracing {
	case "simple":
		tracer = observe.NewSimpleTracer()
	case "otel":
		if !observe.OTelEnabled() {
			fmt.Fprintln(os.Stderr, "Warning: built without -tags otel, tracing disabled")
		}
		tracer = observe.NewOTelTracer("qshield")
	default:
		tracer = observe.NoOpTracer{}
	}

	return logger, tracer, observe.NewCollector(observe.Labels{"instance": "demo"})
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", what, err)
	os.Exit(1)
}
