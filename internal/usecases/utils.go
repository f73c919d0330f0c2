package usecases

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"
)

// truncateMessage keeps stored error text bounded without splitting a rune.
func truncateMessage(msg string) string {
	if len(msg) <= errorMessageMaxLength {
		return msg
	}
	cut := errorMessageMaxLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// marshalPayload encodes v for an attempt record. Encoding failures are
// recorded instead of dropped.
func marshalPayload(v interface{}) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 || !json.Valid(raw) {
			return nil
		}
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"encodeError": err.Error()})
	}
	return b
}

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"X-Admin-Token": true,
}

// flattenHeaders joins the values of every header, masking credentials.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(h[k]) == 0 {
			continue
		}
		canonical := http.CanonicalHeaderKey(k)
		if redactedHeaders[canonical] {
			out[canonical] = "[redacted]"
			continue
		}
		out[canonical] = strings.Join(h[k], ",")
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}
