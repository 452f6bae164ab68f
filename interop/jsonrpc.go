// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
)

const (
	maxRPCRetries    = 3
	rpcRetryBaseWait = 100 * time.Millisecond
)

// sendJSONRPC issues one JSON-RPC2 call (gorilla/rpc's wire format) against
// addr, retrying transient transport failures a bounded number of times.
// This is the token broker's transport; it carries no relation to the
// grpcwire method calls the interop client makes, which all go over the
// real transport package.
func sendJSONRPC(ctx context.Context, addr, method string, args, reply any) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("interop: encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRPCRetries; attempt++ {
		if attempt > 0 {
			wait := rpcRetryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("interop: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			lastErr = err
			if isRetryableRPCErr(err) {
				continue
			}
			return fmt.Errorf("interop: issuing request: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			drainAndClose(resp.Body)
			return fmt.Errorf("interop: token broker returned status %d", resp.StatusCode)
		}

		if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
			drainAndClose(resp.Body)
			return fmt.Errorf("interop: decode response: %w", err)
		}
		drainAndClose(resp.Body)
		return nil
	}

	return fmt.Errorf("interop: request failed after %d attempts: %w", maxRPCRetries, lastErr)
}

func isRetryableRPCErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "broken pipe")
}

// drainAndClose drains body before closing it, avoiding HTTP/2 GOAWAY churn
// from closing a body with unread data (golang/go#46071).
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
