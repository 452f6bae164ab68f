// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/grpc/codes"

	"github.com/luxfi/grpcwire"
	rpccreds "github.com/luxfi/grpcwire/credentials"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// TestCase is the name of one named interop scenario, matching the
// --test_case flag of the reference client.
type TestCase string

const (
	EmptyUnary           TestCase = "empty_unary"
	LargeUnary           TestCase = "large_unary"
	ClientStreamingCase  TestCase = "client_streaming"
	ServerStreamingCase  TestCase = "server_streaming"
	PingPong             TestCase = "ping_pong"
	EmptyStream          TestCase = "empty_stream"
	CancelAfterBegin     TestCase = "cancel_after_begin"
	CancelAfterFirstResp TestCase = "cancel_after_first_response"
	TimeoutOnSleepingSrv TestCase = "timeout_on_sleeping_server"
	CustomMetadata       TestCase = "custom_metadata"
	ComputeEngineCreds   TestCase = "compute_engine_creds"
	ServiceAccountCreds  TestCase = "service_account_creds"
	JWTTokenCreds        TestCase = "jwt_token_creds"
	OAuth2AuthToken      TestCase = "oauth2_auth_token"
	PerRPCCreds          TestCase = "per_rpc_creds"
)

const largePayloadSize = 271828
const largeResponseSize = 314159

// caseConfig is the per-case option bag: the knobs a caller may override for
// the size-sensitive test cases (payload sizes, credential selection isn't
// part of this struct since it's driven by tc/tokenBrokerAddr directly).
// Operators pass overrides as a loosely-typed map (e.g. decoded from
// repeated "--case_option key=value" CLI flags); mapstructure turns that bag
// into this typed config, falling back to the named case's own defaults for
// anything left unset.
type caseConfig struct {
	PayloadSize       int32   `mapstructure:"payload_size"`
	ResponseSize      int32   `mapstructure:"response_size"`
	ClientStreamSizes []int32 `mapstructure:"client_stream_sizes"`
	ServerStreamSizes []int32 `mapstructure:"server_stream_sizes"`
}

func decodeCaseConfig(opts map[string]string, defaults caseConfig) (caseConfig, error) {
	cfg := defaults
	if len(opts) == 0 {
		return cfg, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return caseConfig{}, fmt.Errorf("interop: building case option decoder: %w", err)
	}
	if err := dec.Decode(opts); err != nil {
		return caseConfig{}, fmt.Errorf("interop: decoding case options: %w", err)
	}
	return cfg, nil
}

// Run executes the named test case against client, returning an error
// describing the first assertion that failed. opts carries per-case
// overrides (see caseConfig); a nil or empty map runs every case with its
// documented default sizes.
func Run(ctx context.Context, client *grpcwire.Client, tc TestCase, tokenBrokerAddr string, opts map[string]string) error {
	switch tc {
	case EmptyUnary:
		return runEmptyUnary(ctx, client)
	case LargeUnary:
		return runLargeUnary(ctx, client, opts)
	case ClientStreamingCase:
		return runClientStreaming(ctx, client, opts)
	case ServerStreamingCase:
		return runServerStreaming(ctx, client, opts)
	case PingPong:
		return runPingPong(ctx, client)
	case EmptyStream:
		return runEmptyStream(ctx, client)
	case CancelAfterBegin:
		return runCancelAfterBegin(ctx, client)
	case CancelAfterFirstResp:
		return runCancelAfterFirstResponse(ctx, client)
	case TimeoutOnSleepingSrv:
		return runTimeoutOnSleepingServer(ctx, client)
	case CustomMetadata:
		return runCustomMetadata(ctx, client)
	case ComputeEngineCreds, ServiceAccountCreds, JWTTokenCreds, OAuth2AuthToken, PerRPCCreds:
		return runOAuthVariant(ctx, client, tc, tokenBrokerAddr)
	default:
		return fmt.Errorf("interop: unknown test case %q", tc)
	}
}

func runEmptyUnary(ctx context.Context, client *grpcwire.Client) error {
	res, _, err := client.CallUnary(ctx, "EmptyCall", Empty{})
	if err != nil {
		return fmt.Errorf("EmptyCall: %w", err)
	}
	if _, ok := res.Response.(Empty); !ok {
		return fmt.Errorf("EmptyCall: unexpected response type %T", res.Response)
	}
	return nil
}

func runLargeUnary(ctx context.Context, client *grpcwire.Client, opts map[string]string) error {
	cfg, err := decodeCaseConfig(opts, caseConfig{PayloadSize: largePayloadSize, ResponseSize: largeResponseSize})
	if err != nil {
		return err
	}
	req := SimpleRequest{ResponseType: Compressable, ResponseSize: cfg.ResponseSize, Payload: NewPayload(cfg.PayloadSize, Compressable)}
	res, _, err := client.CallUnary(ctx, "UnaryCall", req)
	if err != nil {
		return fmt.Errorf("UnaryCall: %w", err)
	}
	resp, ok := res.Response.(SimpleResponse)
	if !ok {
		return fmt.Errorf("UnaryCall: unexpected response type %T", res.Response)
	}
	if resp.Payload == nil || int32(len(resp.Payload.Body)) != cfg.ResponseSize {
		return fmt.Errorf("UnaryCall: expected %d byte payload, got %v", cfg.ResponseSize, resp.Payload)
	}
	if resp.Payload.Type != Compressable {
		return fmt.Errorf("UnaryCall: want payload type %v, got %v", Compressable, resp.Payload.Type)
	}
	return nil
}

func runClientStreaming(ctx context.Context, client *grpcwire.Client, opts map[string]string) error {
	cfg, err := decodeCaseConfig(opts, caseConfig{ClientStreamSizes: []int32{27182, 8, 1828, 45904}})
	if err != nil {
		return err
	}
	sizes := cfg.ClientStreamSizes
	cs, err := client.CallClientStream(ctx, "StreamingInputCall")
	if err != nil {
		return fmt.Errorf("StreamingInputCall: %w", err)
	}
	var want int32
	for _, sz := range sizes {
		want += sz
		if err := cs.Send(StreamingInputCallRequest{Payload: NewPayload(sz, Compressable)}); err != nil {
			return fmt.Errorf("StreamingInputCall send: %w", err)
		}
	}
	res, err := cs.CloseAndRecv()
	if err != nil {
		return fmt.Errorf("StreamingInputCall CloseAndRecv: %w", err)
	}
	resp, ok := res.Response.(StreamingInputCallResponse)
	if !ok {
		return fmt.Errorf("StreamingInputCall: unexpected response type %T", res.Response)
	}
	if resp.AggregatedPayloadSize != want {
		return fmt.Errorf("StreamingInputCall: want aggregated size %d, got %d", want, resp.AggregatedPayloadSize)
	}
	return nil
}

func runServerStreaming(ctx context.Context, client *grpcwire.Client, opts map[string]string) error {
	cfg, err := decodeCaseConfig(opts, caseConfig{ServerStreamSizes: []int32{31415, 9, 2653, 58979}})
	if err != nil {
		return err
	}
	sizes := cfg.ServerStreamSizes
	var params []ResponseParameters
	for _, sz := range sizes {
		params = append(params, ResponseParameters{Size: sz})
	}
	ss, err := client.CallServerStream(ctx, "StreamingOutputCall", StreamingOutputCallRequest{ResponseParameters: params})
	if err != nil {
		return fmt.Errorf("StreamingOutputCall: %w", err)
	}
	got := 0
	for {
		res, err := ss.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("StreamingOutputCall recv: %w", err)
		}
		resp, ok := res.Response.(StreamingOutputCallResponse)
		if !ok {
			return fmt.Errorf("StreamingOutputCall: unexpected response type %T", res.Response)
		}
		if got >= len(sizes) {
			return fmt.Errorf("StreamingOutputCall: more responses than expected")
		}
		if resp.Payload == nil || len(resp.Payload.Body) != int(sizes[got]) {
			return fmt.Errorf("StreamingOutputCall: response %d size mismatch", got)
		}
		got++
	}
	if got != len(sizes) {
		return fmt.Errorf("StreamingOutputCall: want %d responses, got %d", len(sizes), got)
	}
	return nil
}

func runPingPong(ctx context.Context, client *grpcwire.Client) error {
	reqSizes := []int32{27182, 8, 1828, 45904}
	respSizes := []int32{31415, 9, 2653, 58979}

	bs, err := client.CallBidi(ctx, "FullDuplexCall")
	if err != nil {
		return fmt.Errorf("FullDuplexCall: %w", err)
	}
	for i := range reqSizes {
		req := StreamingOutputCallRequest{
			ResponseParameters: []ResponseParameters{{Size: respSizes[i]}},
			Payload:            NewPayload(reqSizes[i], Compressable),
		}
		if err := bs.Send(req); err != nil {
			return fmt.Errorf("FullDuplexCall send %d: %w", i, err)
		}
		res, err := bs.Recv()
		if err != nil {
			return fmt.Errorf("FullDuplexCall recv %d: %w", i, err)
		}
		resp, ok := res.Response.(StreamingOutputCallResponse)
		if !ok {
			return fmt.Errorf("FullDuplexCall: unexpected response type %T", res.Response)
		}
		if resp.Payload == nil || int32(len(resp.Payload.Body)) != respSizes[i] {
			return fmt.Errorf("FullDuplexCall: response %d size mismatch", i)
		}
	}
	if err := bs.CloseSend(); err != nil {
		return fmt.Errorf("FullDuplexCall CloseSend: %w", err)
	}
	if _, err := bs.Recv(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("FullDuplexCall: want io.EOF after close, got %v", err)
	}
	return nil
}

func runEmptyStream(ctx context.Context, client *grpcwire.Client) error {
	bs, err := client.CallBidi(ctx, "FullDuplexCall")
	if err != nil {
		return fmt.Errorf("FullDuplexCall: %w", err)
	}
	if err := bs.CloseSend(); err != nil {
		return fmt.Errorf("FullDuplexCall CloseSend: %w", err)
	}
	if _, err := bs.Recv(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("FullDuplexCall: want io.EOF on empty stream, got %v", err)
	}
	return nil
}

func runCancelAfterBegin(ctx context.Context, client *grpcwire.Client) error {
	cs, err := client.CallClientStream(ctx, "StreamingInputCall")
	if err != nil {
		return fmt.Errorf("StreamingInputCall: %w", err)
	}
	cs.Cancel()
	if _, err := cs.CloseAndRecv(); err == nil {
		return errors.New("StreamingInputCall: expected an error after Cancel")
	}
	return nil
}

func runCancelAfterFirstResponse(ctx context.Context, client *grpcwire.Client) error {
	bs, err := client.CallBidi(ctx, "FullDuplexCall")
	if err != nil {
		return fmt.Errorf("FullDuplexCall: %w", err)
	}
	req := StreamingOutputCallRequest{ResponseParameters: []ResponseParameters{{Size: 31415}}, Payload: NewPayload(27182, Compressable)}
	if err := bs.Send(req); err != nil {
		return fmt.Errorf("FullDuplexCall send: %w", err)
	}
	if _, err := bs.Recv(); err != nil {
		return fmt.Errorf("FullDuplexCall recv: %w", err)
	}
	bs.Cancel()
	if _, err := bs.Recv(); err == nil {
		return errors.New("FullDuplexCall: expected an error after Cancel")
	}
	return nil
}

func runTimeoutOnSleepingServer(ctx context.Context, client *grpcwire.Client) error {
	bs, err := client.CallBidi(ctx, "FullDuplexCall", grpcwire.WithTimeout(1*time.Millisecond))
	if err != nil {
		return fmt.Errorf("FullDuplexCall: %w", err)
	}
	req := StreamingOutputCallRequest{ResponseParameters: []ResponseParameters{{Size: 1, IntervalUS: 1_000_000}}, Payload: NewPayload(27182, Compressable)}
	_ = bs.Send(req)
	_, err = bs.Recv()
	var statusErr *grpcwire.StatusError
	if !errors.As(err, &statusErr) {
		return fmt.Errorf("FullDuplexCall: want a status error, got %v", err)
	}
	// A deadline race may surface INTERNAL instead of DEADLINE_EXCEEDED.
	if statusErr.Code != codes.DeadlineExceeded && statusErr.Code != codes.Internal {
		return fmt.Errorf("FullDuplexCall: want DEADLINE_EXCEEDED or INTERNAL, got %v", statusErr.Code)
	}
	return nil
}

func runCustomMetadata(ctx context.Context, client *grpcwire.Client) error {
	if err := runCustomMetadataUnary(ctx, client); err != nil {
		return err
	}
	return runCustomMetadataDuplex(ctx, client)
}

func runCustomMetadataUnary(ctx context.Context, client *grpcwire.Client) error {
	const initialValue = "test_initial_metadata_value"
	const trailingValue = "test_trailing_metadata_value"

	var md rpcmd.MD
	md.Set(EchoInitialKey, initialValue)
	md.Set(EchoTrailingKey, trailingValue)

	req := SimpleRequest{ResponseSize: 1, Payload: NewPayload(1, Compressable)}
	res, _, err := client.CallUnary(ctx, "UnaryCall", req, grpcwire.WithInitialMetadata(md))
	if err != nil {
		return fmt.Errorf("UnaryCall: %w", err)
	}
	if got := res.InitialMetadata.Get(EchoInitialKey); len(got) != 1 || got[0] != initialValue {
		return fmt.Errorf("UnaryCall: want echoed initial metadata %q, got %v", initialValue, got)
	}
	if got := res.TrailingMetadata.Get(EchoTrailingKey); len(got) != 1 || got[0] != trailingValue {
		return fmt.Errorf("UnaryCall: want echoed trailing metadata %q, got %v", trailingValue, got)
	}
	return nil
}

// runCustomMetadataDuplex repeats the same initial/trailing metadata echo
// assertion over FullDuplexCall: the unary leg alone doesn't exercise
// Service.echoMetadata's duplex path, and the two are not guaranteed to
// agree without a dedicated check.
func runCustomMetadataDuplex(ctx context.Context, client *grpcwire.Client) error {
	const initialValue = "test_initial_metadata_value"
	const trailingValue = "test_trailing_metadata_value"

	var md rpcmd.MD
	md.Set(EchoInitialKey, initialValue)
	md.Set(EchoTrailingKey, trailingValue)

	bs, err := client.CallBidi(ctx, "FullDuplexCall", grpcwire.WithInitialMetadata(md))
	if err != nil {
		return fmt.Errorf("FullDuplexCall: %w", err)
	}
	req := StreamingOutputCallRequest{ResponseParameters: []ResponseParameters{{Size: 1}}, Payload: NewPayload(1, Compressable)}
	if err := bs.Send(req); err != nil {
		return fmt.Errorf("FullDuplexCall send: %w", err)
	}
	res, err := bs.Recv()
	if err != nil {
		return fmt.Errorf("FullDuplexCall recv: %w", err)
	}
	if got := res.InitialMetadata.Get(EchoInitialKey); len(got) != 1 || got[0] != initialValue {
		return fmt.Errorf("FullDuplexCall: want echoed initial metadata %q, got %v", initialValue, got)
	}
	if err := bs.CloseSend(); err != nil {
		return fmt.Errorf("FullDuplexCall CloseSend: %w", err)
	}
	if _, err := bs.Recv(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("FullDuplexCall: want io.EOF after close, got %v", err)
	}
	if got := bs.TrailingMetadata().Get(EchoTrailingKey); len(got) != 1 || got[0] != trailingValue {
		return fmt.Errorf("FullDuplexCall: want echoed trailing metadata %q, got %v", trailingValue, got)
	}
	return nil
}

// runOAuthVariant covers the five credential-sourced named test cases. They
// differ only in how the access token is minted in the full reference
// suite (GCE metadata server, service-account JSON, signed JWT, refreshed
// OAuth2 token, per-RPC override); this binding mints every variant's token
// from the same local TokenBroker, since standing up real cloud credential
// infrastructure is out of scope for an interop harness run in CI.
func runOAuthVariant(ctx context.Context, client *grpcwire.Client, tc TestCase, tokenBrokerAddr string) error {
	if tokenBrokerAddr == "" {
		return fmt.Errorf("%s: no token broker address configured", tc)
	}
	source := NewAccessTokenSource(tokenBrokerAddr, string(tc))

	var cred rpccreds.CallCredential
	if tc == PerRPCCreds {
		cred = rpccreds.FromAccessTokenSource(source)
		req := SimpleRequest{ResponseSize: 1, Payload: NewPayload(1, Compressable), FillOAuthScope: true}
		_, _, err := client.CallUnary(ctx, "UnaryCall", req, grpcwire.WithCallCredentials(cred))
		if err != nil {
			return fmt.Errorf("%s: %w", tc, err)
		}
		return nil
	}

	tok, err := source.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: minting token: %w", tc, err)
	}
	var md rpcmd.MD
	md.Set("authorization", "Bearer "+tok)
	req := SimpleRequest{ResponseSize: 1, Payload: NewPayload(1, Compressable), FillUsername: true, FillOAuthScope: true}
	_, _, err = client.CallUnary(ctx, "UnaryCall", req, grpcwire.WithInitialMetadata(md))
	if err != nil {
		return fmt.Errorf("%s: %w", tc, err)
	}
	return nil
}
