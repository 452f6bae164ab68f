// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	gorillarpc "github.com/gorilla/rpc/v2"

	"github.com/luxfi/grpcwire/credentials"
)

// TokenBroker is a local stand-in for the OAuth token-minting services the
// named test cases compute_engine_creds, service_account_creds,
// jwt_token_creds, oauth2_auth_token, and per_rpc_creds exercise against in
// the reference suite. It speaks JSON-RPC2 over HTTP (gorilla/rpc's json2
// codec), so a broker can be stood up with nothing but net/http.
type TokenBroker struct {
	mu     sync.Mutex
	tokens map[string]string // scope -> token
	ttl    time.Duration
}

// NewTokenBroker builds a broker that mints tokens valid for ttl.
func NewTokenBroker(ttl time.Duration) *TokenBroker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenBroker{tokens: make(map[string]string), ttl: ttl}
}

// MintArgs names the scope a token is requested for.
type MintArgs struct {
	Scope string `json:"scope"`
}

// MintReply carries the minted token and its validity window.
type MintReply struct {
	AccessToken      string `json:"access_token"`
	ExpiresInSeconds int32  `json:"expires_in_seconds"`
}

// Mint is the JSON-RPC2 method gorilla/rpc dispatches to: "TokenBroker.Mint".
func (b *TokenBroker) Mint(r *http.Request, args *MintArgs, reply *MintReply) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok, ok := b.tokens[args.Scope]
	if !ok {
		tok = fmt.Sprintf("interop-token-%s-%d", args.Scope, len(b.tokens))
		b.tokens[args.Scope] = tok
	}
	reply.AccessToken = tok
	reply.ExpiresInSeconds = int32(b.ttl / time.Second)
	return nil
}

// Handler returns an http.Handler serving the broker's JSON-RPC2 endpoint: a
// *gorillarpc.Server with the json2 codec registered, and the receiver
// registered under a fixed RPC name.
func (b *TokenBroker) Handler() http.Handler {
	server := gorillarpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	_ = server.RegisterService(b, "TokenBroker")
	return server
}

// clientTokenSource implements credentials.AccessTokenSource by calling a
// TokenBroker's Mint method over HTTP, caching the result until half of its
// validity window has passed.
type clientTokenSource struct {
	addr  string
	scope string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAccessTokenSource returns a credentials.AccessTokenSource backed by the
// token broker listening at addr (e.g. "http://127.0.0.1:8081/rpc"),
// requesting a token scoped to scope.
func NewAccessTokenSource(addr, scope string) credentials.AccessTokenSource {
	return &clientTokenSource{addr: addr, scope: scope}
}

func (s *clientTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && time.Now().Before(s.expiresAt) {
		tok := s.token
		s.mu.Unlock()
		return tok, nil
	}
	s.mu.Unlock()

	var reply MintReply
	if err := sendJSONRPC(ctx, s.addr, "TokenBroker.Mint", &MintArgs{Scope: s.scope}, &reply); err != nil {
		return "", fmt.Errorf("interop: minting token: %w", err)
	}

	s.mu.Lock()
	s.token = reply.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(reply.ExpiresInSeconds) * time.Second / 2)
	s.mu.Unlock()

	return reply.AccessToken, nil
}
