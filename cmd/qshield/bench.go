package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/qshield/qshield-go/pkg/crypto"
	"github.com/qshield/qshield-go/pkg/hybrid"
)

func runBench(iterations, payload int) {
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      QShield Crypto Pipeline Benchmark                   ║")
	fmt.Println("║      Hybrid: Kyber512 + X25519 -> SHAKE-256              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Iterations: %d, payload: %d bytes\n\n", iterations, payload)

	kp, err := crypto.GenerateKyberKeyPair()
	if err != nil {
		fatal("generate kyber key pair", err)
	}
	defer kp.Zeroize()
	xkp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		fatal("generate x25519 key pair", err)
	}
	defer xkp.Zeroize()

	plaintext, err := crypto.SecureRandomBytes(payload)
	if err != nil {
		fatal("generate payload", err)
	}

	benchOp("Kyber512 keygen", iterations, func() error {
		pair, err := crypto.GenerateKyberKeyPair()
		if err == nil {
			pair.Zeroize()
		}
		return err
	})

	benchOp("Kyber512 encapsulate", iterations, func() error {
		res, err := crypto.KyberEncapsulate(kp.EncapsulationKey)
		if err == nil {
			res.Zeroize()
		}
		return err
	})

	benchOp("Hybrid encrypt", iterations, func() error {
		_, err := hybrid.Encrypt(plaintext, kp.EncapsulationKey, xkp.PublicKey)
		return err
	})

	fields, err := hybrid.Encrypt(plaintext, kp.EncapsulationKey, xkp.PublicKey)
	if err != nil {
		fatal("prepare decrypt benchmark", err)
	}
	benchOp("Hybrid decrypt", iterations, func() error {
		_, err := hybrid.Decrypt(fields, kp.DecapsulationKey, xkp.PrivateKey)
		return err
	})
}

func benchOp(name string, iterations int, op func() error) {
	fmt.Printf("%s\n%s\n", name, strings.Repeat("─", 60))

	durations := make([]time.Duration, 0, iterations)
	failures := 0
	start := time.Now()
	for i := 0; i < iterations; i++ {
		opStart := time.Now()
		if err := op(); err != nil {
			failures++
			continue
		}
		durations = append(durations, time.Since(opStart))
	}
	total := time.Since(start)

	if len(durations) == 0 {
		fmt.Fprintf(os.Stderr, "  all %d iterations failed\n\n", iterations)
		return
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	sum := time.Duration(0)
	for _, d := range durations {
		sum += d
	}

	fmt.Printf("  ops/sec: %.0f\n", float64(len(durations))/total.Seconds())
	fmt.Printf("  mean:    %s\n", (sum / time.Duration(len(durations))).Round(time.Microsecond))
	fmt.Printf("  p50:     %s\n", durations[len(durations)/2].Round(time.Microsecond))
	fmt.Printf("  p99:     %s\n", durations[len(durations)*99/100].Round(time.Microsecond))
	if failures > 0 {
		fmt.Printf("  failures: %d\n", failures)
	}
	fmt.Println()
}
