// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// reservedMethodPrefix is reserved for internal client fields:
// a ServiceDesc entry keyed with this prefix is rejected at client
// construction time.
const reservedMethodPrefix = "$"

func invalidArgument(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

func checkReservedMethodNames(methods map[string]*MethodDesc) error {
	for name := range methods {
		if strings.HasPrefix(name, reservedMethodPrefix) {
			return invalidArgument("grpcwire: method name %q uses the reserved %q prefix", name, reservedMethodPrefix)
		}
	}
	return nil
}
