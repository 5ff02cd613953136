package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/qshield/qshield-go/internal/constants"
	pkgversion "github.com/qshield/qshield-go/pkg/version"
)

// Build-time variables (set via -ldflags)
var (
	version   = ""        // Set via -ldflags "-X main.version=x.y.z"
	buildTime = "unknown" // Set via -ldflags "-X main.buildTime=..."
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	// Optional .env file; absence is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "demo":
		demoCommand()
	case "bench":
		benchCommand()
	case "version":
		fmt.Printf("qshield version %s\n", getVersion())
		fmt.Printf("Protocol: %s (0x%04x)\n", constants.ProtocolName, constants.ProtocolVersion)
		if buildTime != "unknown" {
			fmt.Printf("Built: %s\n", buildTime)
		}
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`qshield - Hybrid Post-Quantum Self-Destructing Messages

USAGE:
    qshield <command> [options]

COMMANDS:
    demo      Run an end-to-end send/fetch/read demo
    bench     Run crypto pipeline benchmarks
    version   Print version information
    help      Show this help message

Run 'qshield <command> --help' for more information on a command.

ENVIRONMENT (also read from a .env file):
    QSHIELD_TTL_SECONDS    Default message TTL for the demo
    QSHIELD_LOG_LEVEL      debug, info, warn, error, silent
    QSHIELD_LOG_FORMAT     text or json
    QSHIELD_STORE          memory or badger
    QSHIELD_BADGER_PATH    Database directory for the badger store

EXAMPLES:
    # Send, fetch, and destroy one message
    qshield demo --message "Hello Bob from Alice!" --ttl 15

    # Same flow on a persistent badger store
    qshield demo --store badger --badger-path /tmp/qshield

    # Benchmark the hybrid pipeline
    qshield bench --iterations 200

PROJECT:
    QShield-Go - Kyber512 + X25519 hybrid encryption with
    at-most-once, TTL-bounded message delivery.`)
}

func demoCommand() {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	recipient := fs.String("recipient", "bob", "Recipient identifier")
	message := fs.String("message", "Hello Bob from Alice!", "Message to send")
	ttl := fs.Int("ttl", envInt("QSHIELD_TTL_SECONDS", constants.DefaultTTLSeconds), "Message TTL in seconds")
	store := fs.String("store", envStr("QSHIELD_STORE", "memory"), "Envelope store: memory or badger")
	badgerPath := fs.String("badger-path", envStr("QSHIELD_BADGER_PATH", ""), "Badger database directory (empty = in-memory badger)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus metrics address (empty disables)")
	logLevel := fs.String("log-level", envStr("QSHIELD_LOG_LEVEL", "warn"), "Log level: debug, info, warn, error, silent")
	logFormat := fs.String("log-format", envStr("QSHIELD_LOG_FORMAT", "text"), "Log format: text or json")
	tracing := fs.String("tracing", "none", "Tracing mode: none, simple, otel (requires -tags otel)")

	fs.Usage = func() {
		fmt.Println(`USAGE: qshield demo [options]

Run the full message lifecycle against a local store: enroll recipient keys,
seal a message, fetch it, destroy it on read, and show that the token is gone.

OPTIONS:`)
		fs.PrintDefaults()
		fmt.Println(`
EXAMPLES:
    # Default in-memory demo
    qshield demo

    # Show key material sizes and derivation mode
    qshield demo --verbose

    # Persist envelopes in badger and expose metrics
    qshield demo --store badger --badger-path /tmp/qshield --metrics-addr :9090`)
	}

	_ = fs.Parse(os.Args[2:])

	runDemo(demoConfig{
		recipient:   *recipient,
		message:     *message,
		ttlSeconds:  *ttl,
		store:       *store,
		badgerPath:  *badgerPath,
		verbose:     *verbose,
		metricsAddr: *metricsAddr,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		tracing:     *tracing,
	})
}

func benchCommand() {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	iterations := fs.Int("iterations", 100, "Iterations per benchmark")
	payload := fs.Int("payload", 1024, "Plaintext size in bytes")

	fs.Usage = func() {
		fmt.Println(`USAGE: qshield bench [options]

Benchmark key generation, encapsulation, and the hybrid encrypt/decrypt
pipeline.

OPTIONS:`)
		fs.PrintDefaults()
		fmt.Println(`
EXAMPLES:
    # 100 iterations with 1 KiB payloads
    qshield bench

    # Heavier run
    qshield bench --iterations 1000 --payload 65536`)
	}

	_ = fs.Parse(os.Args[2:])

	runBench(*iterations, *payload)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
