// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// rawSubtype is the content-subtype this package negotiates on every call:
// "application/grpc+raw" on the wire. Message bytes are supplied and
// consumed by the caller (the method descriptor's serialize/deserialize
// pair, see grpcwire.MethodDesc) — this package never looks inside them.
const rawSubtype = "raw"

// rawCodec is a pass-through encoding.Codec: Marshal/Unmarshal just move a
// []byte in and out, with no interpretation. It is the "user messages are
// opaque byte producers/consumers" boundary this package sits behind.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("transport: raw codec expected []byte, got %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("transport: raw codec expected *[]byte, got %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return rawSubtype }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
