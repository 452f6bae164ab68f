// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metadata is an ordered multimap of RPC header entries, used for
// both initial and trailing metadata. Keys are ASCII and compared
// case-insensitively; a key ending in "-bin" carries opaque binary values,
// any other key carries UTF-8 text.
package metadata

import (
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc/metadata"
)

// BinarySuffix marks a key as carrying binary (non-UTF-8) values.
const BinarySuffix = "-bin"

// IsBinary reports whether key is a binary-valued key.
func IsBinary(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), BinarySuffix)
}

type entry struct {
	key    string // original casing, as first set
	values []string
}

// MD is an ordered multimap of metadata entries. The zero value is an empty
// map ready to use. MD is not safe for concurrent use without external
// synchronization.
type MD struct {
	order []string // lowercased keys, in first-insertion order
	byKey map[string]*entry
}

// New builds an MD from initial key/value pairs, e.g.
// New("authority", "foo", "authority", "bar"). Pairs must have even length.
func New(pairs ...string) MD {
	md := MD{}
	for i := 0; i+1 < len(pairs); i += 2 {
		md.Add(pairs[i], pairs[i+1])
	}
	return md
}

func (md *MD) init() {
	if md.byKey == nil {
		md.byKey = make(map[string]*entry)
	}
}

// Set replaces all values under key with a single value.
func (md *MD) Set(key, value string) {
	md.init()
	lk := strings.ToLower(key)
	if e, ok := md.byKey[lk]; ok {
		e.values = e.values[:0]
		e.values = append(e.values, value)
		return
	}
	md.byKey[lk] = &entry{key: key, values: []string{value}}
	md.order = append(md.order, lk)
}

// Add appends value to the list under key, preserving insertion order.
func (md *MD) Add(key, value string) {
	md.init()
	lk := strings.ToLower(key)
	if e, ok := md.byKey[lk]; ok {
		e.values = append(e.values, value)
		return
	}
	md.byKey[lk] = &entry{key: key, values: []string{value}}
	md.order = append(md.order, lk)
}

// Get returns the ordered list of values under key, or nil if absent.
func (md MD) Get(key string) []string {
	if md.byKey == nil {
		return nil
	}
	e, ok := md.byKey[strings.ToLower(key)]
	if !ok {
		return nil
	}
	out := make([]string, len(e.values))
	copy(out, e.values)
	return out
}

// Delete removes all values under key.
func (md *MD) Delete(key string) {
	if md.byKey == nil {
		return
	}
	lk := strings.ToLower(key)
	if _, ok := md.byKey[lk]; !ok {
		return
	}
	delete(md.byKey, lk)
	for i, k := range md.order {
		if k == lk {
			md.order = append(md.order[:i], md.order[i+1:]...)
			break
		}
	}
}

// Keys returns the set of keys in first-insertion order, using each key's
// originally-set casing.
func (md MD) Keys() []string {
	out := make([]string, 0, len(md.order))
	for _, lk := range md.order {
		out = append(out, md.byKey[lk].key)
	}
	return out
}

// Len reports the number of distinct keys.
func (md MD) Len() int {
	return len(md.order)
}

// Clone returns a fully independent deep copy.
func (md MD) Clone() MD {
	out := MD{
		order: append([]string(nil), md.order...),
		byKey: make(map[string]*entry, len(md.byKey)),
	}
	for lk, e := range md.byKey {
		out.byKey[lk] = &entry{key: e.key, values: append([]string(nil), e.values...)}
	}
	return out
}

// Validate checks the UTF-8/binary-key convention: text keys must carry
// valid UTF-8 values.
func (md MD) Validate() error {
	for _, lk := range md.order {
		e := md.byKey[lk]
		if IsBinary(e.key) {
			continue
		}
		for _, v := range e.values {
			if !utf8.ValidString(v) {
				return &InvalidValueError{Key: e.key}
			}
		}
	}
	return nil
}

// InvalidValueError reports a text-keyed entry carrying non-UTF-8 bytes.
type InvalidValueError struct {
	Key string
}

func (e *InvalidValueError) Error() string {
	return "metadata: key " + e.Key + " is not binary (-bin) but carries non-UTF-8 value"
}

// ToGRPC converts md into the wire representation used by
// google.golang.org/grpc, preserving per-key value order.
func (md MD) ToGRPC() metadata.MD {
	out := metadata.MD{}
	for _, lk := range md.order {
		e := md.byKey[lk]
		out[lk] = append(out[lk], e.values...)
	}
	return out
}

// FromGRPC converts a wire metadata.MD back into an MD. Key casing is not
// recoverable from metadata.MD (grpc-go lowercases on the wire), so the
// lowercased form is used as the canonical casing.
func FromGRPC(in metadata.MD) MD {
	md := MD{}
	for k, vs := range in {
		for _, v := range vs {
			md.Add(k, v)
		}
	}
	return md
}
