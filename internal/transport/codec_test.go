// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRawCodecRoundTrip(t *testing.T) {
	c := rawCodec{}
	in := []byte("hello")

	out, err := c.Marshal(in)
	require.NoError(t, err)
	require.Equal(t, in, out)

	var dst []byte
	require.NoError(t, c.Unmarshal(out, &dst))
	require.Equal(t, in, dst)
	require.Equal(t, rawSubtype, c.Name())
}

func TestRawCodecRejectsWrongType(t *testing.T) {
	c := rawCodec{}
	_, err := c.Marshal("not bytes")
	require.Error(t, err)

	var notBytes string
	err = c.Unmarshal([]byte("x"), &notBytes)
	require.Error(t, err)
}
