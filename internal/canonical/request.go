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
package canonical

import (
	"net/url"
	"sort"
	"strings"
)

// signedHeaderPrefix selects which request headers take part in the
// signature, alongside host.
const signedHeaderPrefix = "x-api-"

// BuildRequest assembles the canonical string for a request. Layout, each
// component terminated by a single newline except the body:
//
//	lower-cased method
//	absolute path, exactly as received
//	host and x-api-* headers, lower-cased names, sorted, joined name:value with &
//	query parameters (only when present), sorted, joined key=value with &
//	body: canonicalized JSON, or the raw text when it does not parse
//
// The header line is emitted even when empty. No newline follows the body.
func BuildRequest(method, path string, headers map[string]string, query map[string]string, body []byte) string {
	var b strings.Builder

	b.WriteString(strings.ToLower(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')

	b.WriteString(headerSegment(headers))
	b.WriteByte('\n')

	if len(query) > 0 {
		b.WriteString(querySegment(query))
		b.WriteByte('\n')
	}

	b.Write(CanonicalizeOrRaw(body))
	return b.String()
}

func headerSegment(headers map[string]string) string {
	parts := make([]string, 0, len(headers))
	for name, value := range headers {
		lower := strings.ToLower(name)
		if lower == "host" || strings.HasPrefix(lower, signedHeaderPrefix) {
			parts = append(parts, lower+":"+value)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

func querySegment(query map[string]string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	// case-insensitive sort, byte-wise tie break, matching the verifier
	sort.Slice(keys, func(i, j int) bool {
		li, lj := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, escape(k)+"="+escape(query[k]))
	}
	return strings.Join(parts, "&")
}

// escape percent-encodes the way the gateway does: spaces become %20, never +.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
