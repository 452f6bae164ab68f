// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sideband is a minimal binary request/response protocol for the
// interop server's debug control plane (call counters), kept independent
// of the grpc-bound transport package so it can be probed even if the main
// service's transport is misbehaving. A sideband connection serves exactly
// one call: dial, send a request, read its response, close. There is no
// connection reuse and no in-flight multiplexing, since the debug surface
// never needs more than one outstanding request at a time.
package sideband

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Call once the Conn it was issued on has been
// closed.
var ErrClosed = errors.New("sideband: connection closed")

const maxFrameSize = 1 << 20

// envelope is the JSON body carried inside one length-prefixed frame. A
// request sets Method/Payload; a response sets Payload or Error.
type envelope struct {
	Method  string `json:"method,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Conn is a client connection to a sideband Server, good for one Call.
type Conn struct {
	conn   net.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

// Dial connects to a sideband Server at addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sideband: dial: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Call sends method/payload as a request and blocks for its response. Call
// may be invoked more than once on the same Conn, but the server closes the
// connection after answering its first request, so a second Call normally
// fails; callers that issue more than one Call should Dial once per Call.
func (c *Conn) Call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := writeFrame(c.conn, envelope{Method: method, Payload: payload}); err != nil {
		return nil, fmt.Errorf("sideband: write: %w", err)
	}
	var resp envelope
	if err := readFrame(c.conn, &resp); err != nil {
		return nil, fmt.Errorf("sideband: read: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Payload, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

func writeFrame(w io.Writer, e envelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if len(data) > maxFrameSize {
		return fmt.Errorf("sideband: message of %d bytes exceeds the %d byte limit", len(data), maxFrameSize)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readFrame(r io.Reader, e *envelope) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > maxFrameSize {
		return fmt.Errorf("sideband: invalid frame length %d", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	return json.Unmarshal(data, e)
}

// Handler answers one sideband request.
type Handler interface {
	Handle(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, method string, payload []byte) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, method string, payload []byte) ([]byte, error) {
	return f(ctx, method, payload)
}

// Server accepts sideband connections and answers one request per
// connection before closing it.
type Server struct {
	listener net.Listener
	handler  Handler
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewServer builds a Server bound to listener.
func NewServer(listener net.Listener, handler Handler) *Server {
	return &Server{listener: listener, handler: handler}
}

// Serve accepts connections until ctx is done or the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.wg.Wait()
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	var req envelope
	if err := readFrame(conn, &req); err != nil {
		return
	}
	data, err := s.handler.Handle(ctx, req.Method, req.Payload)
	resp := envelope{Payload: data}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = writeFrame(conn, resp)
}

// Close shuts down the server; in-flight connections are allowed to finish
// their single request before Serve returns.
func (s *Server) Close() error {
	s.closed.Store(true)
	return s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
