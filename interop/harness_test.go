// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCaseConfigAppliesDefaults(t *testing.T) {
	cfg, err := decodeCaseConfig(nil, caseConfig{PayloadSize: 10, ResponseSize: 20})
	require.NoError(t, err)
	require.Equal(t, int32(10), cfg.PayloadSize)
	require.Equal(t, int32(20), cfg.ResponseSize)
}

func TestDecodeCaseConfigOverridesFromStrings(t *testing.T) {
	cfg, err := decodeCaseConfig(map[string]string{
		"payload_size":  "123",
		"response_size": "456",
	}, caseConfig{PayloadSize: 10, ResponseSize: 20})
	require.NoError(t, err)
	require.Equal(t, int32(123), cfg.PayloadSize)
	require.Equal(t, int32(456), cfg.ResponseSize)
}

func TestRunRejectsUnknownTestCase(t *testing.T) {
	err := Run(nil, nil, TestCase("not_a_real_case"), "", nil)
	require.Error(t, err)
}
