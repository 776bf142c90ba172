/*
Copyright 2024 Paycore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package canonical produces the deterministic textual encoding of an HTTP
// request that both sides of the payment gateway integration sign and
// verify. The remote verifier recomputes the encoding byte for byte, so
// every rule here is load-bearing.
package canonical

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// ErrMalformedInput marks input that is not valid JSON. Callers are expected
// to fall back to the raw text: some provider payloads are deliberately not
// JSON.
var ErrMalformedInput = errors.New("canonical: input is not valid JSON")

// CanonicalizeJSON returns compact JSON with every object's keys sorted by
// byte-wise comparison, recursively. Array element order is preserved and
// each element is canonicalized independently. Numbers are re-emitted with
// their original text.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(ErrMalformedInput, err.Error())
	}
	if dec.More() {
		return nil, errors.Wrap(ErrMalformedInput, "trailing data after JSON value")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeOrRaw canonicalizes the body when it parses as JSON and
// returns it untouched when it does not. Both the gateway client and the
// webhook verifier rely on this fallback for non-JSON payloads.
func CanonicalizeOrRaw(body []byte) []byte {
	canonical, err := CanonicalizeJSON(body)
	if err != nil {
		return body
	}
	return canonical
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(val.String())
		return nil
	default:
		// strings, booleans and null round-trip through the standard encoder
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		return nil
	}
}
