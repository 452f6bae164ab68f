// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package interop implements the reference test service and the named
// interoperability test cases the binding is validated against (component
// C11/C12). Every message type here is the JSON-native analogue of the
// well-known grpc.testing.TestService request/response shapes; this binding
// does not use compiled .proto descriptors, so messages are plain Go
// structs serialised with encoding/json (see codec.go).
package interop

import "math/rand"

// PayloadType selects which type of payload a unary or streaming response
// should carry. Random resolves to a coin flip between Compressable and
// Uncompressable at response time (see resolvePayloadType); a response
// never itself reports Random.
type PayloadType int32

const (
	Compressable   PayloadType = 0
	Uncompressable PayloadType = 1
	Random         PayloadType = 2
)

// Payload is an arbitrary-sized opaque body used to pad requests/responses
// to a target size.
type Payload struct {
	Type PayloadType `json:"type"`
	Body []byte      `json:"body"`
}

// EchoStatus lets a client ask the server to fail deliberately with a
// specific code/message, exercising the non-OK status path end to end.
type EchoStatus struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

// ResponseParameters describes one entry of a streaming response: its size
// and requested payload type, plus an optional artificial delay before it
// is sent.
type ResponseParameters struct {
	Size         int32       `json:"size"`
	ResponseType PayloadType `json:"response_type,omitempty"`
	IntervalUS   int32       `json:"interval_us,omitempty"`
}

// SimpleRequest is the UnaryCall request envelope.
type SimpleRequest struct {
	ResponseType   PayloadType `json:"response_type,omitempty"`
	ResponseSize   int32       `json:"response_size,omitempty"`
	Payload        *Payload    `json:"payload,omitempty"`
	FillUsername   bool        `json:"fill_username,omitempty"`
	FillOAuthScope bool        `json:"fill_oauth_scope,omitempty"`
	ResponseStatus *EchoStatus `json:"response_status,omitempty"`
}

// SimpleResponse is the UnaryCall response envelope.
type SimpleResponse struct {
	Payload    *Payload `json:"payload,omitempty"`
	Username   string   `json:"username,omitempty"`
	OAuthScope string   `json:"oauth_scope,omitempty"`
}

// StreamingInputCallRequest is one message of a StreamingInputCall request
// stream.
type StreamingInputCallRequest struct {
	Payload *Payload `json:"payload,omitempty"`
}

// StreamingInputCallResponse is the single StreamingInputCall response,
// reporting the aggregate size of every request payload received.
type StreamingInputCallResponse struct {
	AggregatedPayloadSize int32 `json:"aggregated_payload_size"`
}

// StreamingOutputCallRequest drives StreamingOutputCall/FullDuplexCall: one
// response is produced per entry of ResponseParameters.
type StreamingOutputCallRequest struct {
	ResponseParameters []ResponseParameters `json:"response_parameters,omitempty"`
	Payload            *Payload             `json:"payload,omitempty"`
	ResponseStatus     *EchoStatus          `json:"response_status,omitempty"`
}

// StreamingOutputCallResponse is one message of a streaming response.
type StreamingOutputCallResponse struct {
	Payload *Payload `json:"payload,omitempty"`
}

// Empty is the EmptyCall request/response shape: no fields.
type Empty struct{}

// NewPayload builds a Payload of size bytes and the given type, zero-filled
// (this binding does not need pseudo-random fill; every named test case
// only asserts on size and type).
func NewPayload(size int32, typ PayloadType) *Payload {
	return &Payload{Type: typ, Body: make([]byte, size)}
}

// resolvePayloadType turns a requested PayloadType into the concrete type a
// response actually reports: Random becomes a coin flip between
// Compressable and Uncompressable, anything else passes through unchanged.
func resolvePayloadType(requested PayloadType) PayloadType {
	if requested != Random {
		return requested
	}
	if rand.Intn(2) == 0 {
		return Compressable
	}
	return Uncompressable
}
