// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command interop-server runs the reference test service.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/luxfi/grpcwire/internal/sideband"
	"github.com/luxfi/grpcwire/internal/transport"
	"github.com/luxfi/grpcwire/interop"
)

func main() {
	port := pflag.Int("port", 8080, "port to listen on")
	useTLS := pflag.Bool("use_tls", false, "serve with TLS")
	certFile := pflag.String("tls_cert_file", "", "PEM certificate file, required when use_tls is set")
	keyFile := pflag.String("tls_key_file", "", "PEM key file, required when use_tls is set")
	tokenBrokerPort := pflag.Int("token_broker_port", 0, "port for the local OAuth token broker; 0 disables it")
	debugSidebandPort := pflag.Int("debug_sideband_port", 0, "port for the call-count debug sideband; 0 disables it")
	pflag.Parse()

	log, _ := zap.NewDevelopment()
	sugar := log.Sugar()
	defer sugar.Sync()

	if err := run(sugar, *port, *useTLS, *certFile, *keyFile, *tokenBrokerPort, *debugSidebandPort); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger, port int, useTLS bool, certFile, keyFile string, tokenBrokerPort, debugSidebandPort int) error {
	registry := transport.NewRegistry(log)
	svc := interop.NewService(log)
	svc.Register(registry)

	var serverOpts []grpc.ServerOption
	if useTLS {
		creds, err := credentials.NewServerTLSFromFile(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("loading TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	server := transport.NewServer(registry, serverOpts...)

	if tokenBrokerPort > 0 {
		broker := interop.NewTokenBroker(time.Hour)
		go func() {
			addr := fmt.Sprintf(":%d", tokenBrokerPort)
			log.Infow("token broker listening", "address", addr)
			if err := http.ListenAndServe(addr, broker.Handler()); err != nil {
				log.Errorw("token broker stopped", "error", err)
			}
		}()
	}

	if debugSidebandPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", debugSidebandPort))
		if err != nil {
			return fmt.Errorf("listening for debug sideband on port %d: %w", debugSidebandPort, err)
		}
		sidebandServer := sideband.NewServer(lis, svc.StatsHandler())
		go func() {
			log.Infow("debug sideband listening", "address", lis.Addr().String())
			if err := sidebandServer.Serve(context.Background()); err != nil {
				log.Errorw("debug sideband stopped", "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", port, err)
	}

	fmt.Printf("Server attaching to port %d\n", port)
	log.Infow("reference test service serving", "port", port, "tls", useTLS)

	return server.Serve(lis)
}
