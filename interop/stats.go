// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/luxfi/grpcwire/internal/sideband"
)

// StatsMethod is the sideband RPC name a debug client calls to fetch call
// counts from a running Service.
const StatsMethod = "Stats"

// Stats counts how many times each reference test service method has been
// invoked, exposed over the sideband debug control plane rather than the
// grpc-bound transport, so it stays queryable even if the main service
// itself is wedged.
type Stats struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newStats() *Stats {
	return &Stats{counts: make(map[string]int64)}
}

func (s *Stats) record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[method]++
}

// Snapshot returns a stable, sorted copy of the current counts.
func (s *Stats) Snapshot() []MethodCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MethodCount, 0, len(s.counts))
	for m, c := range s.counts {
		out = append(out, MethodCount{Method: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// MethodCount is one entry of a Stats snapshot.
type MethodCount struct {
	Method string `json:"method"`
	Count  int64  `json:"count"`
}

// Handler returns a sideband.Handler serving StatsMethod from s.
func (s *Stats) Handler() sideband.Handler {
	return sideband.HandlerFunc(func(_ context.Context, method string, _ []byte) ([]byte, error) {
		if method != StatsMethod {
			return nil, errUnknownSidebandMethod(method)
		}
		return json.Marshal(s.Snapshot())
	})
}

type sidebandMethodError string

func (e sidebandMethodError) Error() string { return "interop: unknown sideband method " + string(e) }

func errUnknownSidebandMethod(method string) error {
	return sidebandMethodError(method)
}

// FetchStats calls a running Service's sideband stats endpoint at addr.
func FetchStats(ctx context.Context, addr string) ([]MethodCount, error) {
	conn, err := sideband.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.Call(ctx, StatsMethod, nil)
	if err != nil {
		return nil, err
	}
	var out []MethodCount
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}
