// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetReplacesAllValues(t *testing.T) {
	md := MD{}
	md.Add("x-custom", "a")
	md.Add("x-custom", "b")
	md.Set("x-custom", "c")
	require.Equal(t, []string{"c"}, md.Get("x-custom"))
}

func TestAddAppendsInOrder(t *testing.T) {
	md := MD{}
	md.Add("x-custom", "a")
	md.Add("x-custom", "b")
	require.Equal(t, []string{"a", "b"}, md.Get("x-custom"))
}

func TestGetIsCaseInsensitive(t *testing.T) {
	md := MD{}
	md.Add("X-Grpc-Test-Echo-Initial", "v1")
	require.Equal(t, []string{"v1"}, md.Get("x-grpc-test-echo-initial"))
}

func TestGetMissingReturnsNil(t *testing.T) {
	md := MD{}
	require.Nil(t, md.Get("absent"))
}

// TestCloneIndependence exercises testable property 5 (metadata clone
// independence): mutating a clone must not affect the original.
func TestCloneIndependence(t *testing.T) {
	orig := MD{}
	orig.Add("k", "v1")

	clone := orig.Clone()
	clone.Add("k", "v2")
	clone.Set("other", "x")

	require.Equal(t, []string{"v1"}, orig.Get("k"))
	require.Nil(t, orig.Get("other"))
	require.Equal(t, []string{"v1", "v2"}, clone.Get("k"))
}

func TestIsBinary(t *testing.T) {
	require.True(t, IsBinary("x-grpc-test-echo-trailing-bin"))
	require.True(t, IsBinary("X-Foo-BIN"))
	require.False(t, IsBinary("x-grpc-test-echo-initial"))
}

func TestValidateRejectsNonUTF8TextKey(t *testing.T) {
	md := MD{}
	md.Add("text-key", string([]byte{0xff, 0xfe}))
	require.Error(t, md.Validate())
}

func TestValidateAllowsNonUTF8BinaryKey(t *testing.T) {
	md := MD{}
	md.Add("payload-bin", string([]byte{0xab, 0xab, 0xab}))
	require.NoError(t, md.Validate())
}

func TestGRPCRoundTrip(t *testing.T) {
	md := MD{}
	md.Add("a", "1")
	md.Add("a", "2")
	md.Add("b", "3")

	wire := md.ToGRPC()
	require.Equal(t, []string{"1", "2"}, wire["a"])

	back := FromGRPC(wire)
	require.Equal(t, []string{"1", "2"}, back.Get("a"))
	require.Equal(t, []string{"3"}, back.Get("b"))
}

func TestKeysPreservesFirstSetCasing(t *testing.T) {
	md := MD{}
	md.Add("X-Foo", "1")
	md.Add("x-foo", "2")
	md.Add("y-bar", "3")
	require.Equal(t, []string{"X-Foo", "y-bar"}, md.Keys())
}

func TestDelete(t *testing.T) {
	md := MD{}
	md.Add("a", "1")
	md.Add("b", "2")
	md.Delete("a")
	require.Nil(t, md.Get("a"))
	require.Equal(t, []string{"b"}, md.Keys())
	require.Equal(t, 1, md.Len())
}
