// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import "encoding/json"

// serialize and deserialize adapt the JSON codec convention to the
// (Serialize func(any)([]byte,error), Deserialize func([]byte)(any,error))
// shape grpcwire.MethodDesc requires: messages are opaque bytes to the
// binding, and this package owns their encoding end to end.
func serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

func deserializer[T any]() func([]byte) (any, error) {
	return func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
