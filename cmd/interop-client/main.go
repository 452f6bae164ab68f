// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command interop-client drives the reference test service with one named
// test case.
package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/luxfi/grpcwire"
	rpccreds "github.com/luxfi/grpcwire/credentials"
	"github.com/luxfi/grpcwire/interop"
)

func main() {
	serverHost := pflag.String("server_host", "localhost", "server hostname")
	serverPort := pflag.Int("server_port", 8080, "server port")
	serverHostOverride := pflag.String("server_host_override", "", "TLS authority override")
	testCase := pflag.String("test_case", "large_unary", "named interop test case to run")
	useTLS := pflag.Bool("use_tls", false, "connect with TLS")
	useTestCA := pflag.Bool("use_test_ca", false, "trust the CA bundle given by test_ca_file instead of the system pool")
	tokenBroker := pflag.String("token_broker", "", "HTTP address of the local OAuth token broker, for the *_creds test cases")
	caFile := pflag.String("test_ca_file", "", "path to a PEM CA bundle, used when use_test_ca is set")
	caseOptions := pflag.StringToString("case_option", nil, "per-test-case option override, e.g. payload_size=1000 (repeatable)")
	fetchStats := pflag.String("fetch_stats", "", "instead of running a test case, fetch and print call counts from a server's debug sideband address (host:port) and exit")
	pflag.Parse()

	log, _ := zap.NewDevelopment()
	sugar := log.Sugar()
	defer sugar.Sync()

	if *fetchStats != "" {
		if err := runFetchStats(*fetchStats); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(sugar, *serverHost, *serverPort, *serverHostOverride, *testCase, *useTLS, *useTestCA, *caFile, *tokenBroker, *caseOptions); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

// runFetchStats connects to a running interop-server's debug sideband port
// and prints its per-method call counters.
func runFetchStats(addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := interop.FetchStats(ctx, addr)
	if err != nil {
		return fmt.Errorf("fetching stats from %s: %w", addr, err)
	}
	for _, c := range counts {
		fmt.Printf("%s: %d\n", c.Method, c.Count)
	}
	return nil
}

func run(log *zap.SugaredLogger, host string, port int, hostOverride, testCase string, useTLS, useTestCA bool, caFile, tokenBroker string, caseOptions map[string]string) error {
	channelCreds := rpccreds.Insecure()
	if useTLS {
		var pool *x509.CertPool
		if useTestCA {
			p, err := loadCAFile(caFile)
			if err != nil {
				return fmt.Errorf("loading test CA: %w", err)
			}
			pool = p
		}
		cc, err := rpccreds.SSL(pool, nil)
		if err != nil {
			return fmt.Errorf("building TLS channel credential: %w", err)
		}
		channelCreds = cc
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := grpcwire.NewClient(ctx, addr, interop.Desc, channelCreds,
		grpcwire.WithLogger(log),
		grpcwire.WithSSLTargetNameOverride(hostOverride),
	)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer client.Close()

	if err := interop.Run(ctx, client, interop.TestCase(testCase), tokenBroker, caseOptions); err != nil {
		return err
	}

	fmt.Printf("OK: %s\n", testCase)
	return nil
}

func loadCAFile(path string) (*x509.CertPool, error) {
	if path == "" {
		// No bundled test CA available; fall back to the system pool rather
		// than an empty one that would reject every certificate.
		return nil, nil
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
