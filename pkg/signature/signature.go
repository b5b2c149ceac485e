// Package signature implements the shared-secret request signing used
// between the agent and the remote collector.
//
// A signature is the lowercase hex HMAC-SHA256, keyed with the API
// secret, of the API key, the lower-cased HTTP method, the canonical
// body and the unix timestamp glued together with no separator. The
// collector verifies the same concatenation, so the layout must not
// change.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// Algorithm is the only algorithm the collector accepts.
const Algorithm = "sha256"

// Headers carrying a signed request.
const (
	HeaderKey       = "X-Api-Key"
	HeaderSignature = "X-Api-Signature"
	HeaderTimestamp = "X-Api-Timestamp"
	HeaderAlgorithm = "X-Signature-Algo"
)

// Signature is the triple carried in the algorithm, timestamp and
// signature headers.
type Signature struct {
	Algorithm string
	Timestamp int64
	Value     string
}

// Sign computes the signature over body at timestamp ts. body must be
// encodable: one Canonical rejects signs as an empty body. Callers that
// need the encoding error call Canonical themselves and pass the bytes,
// which Sign uses verbatim.
func Sign(apiKey, apiSecret, method string, body any, ts int64) Signature {
	canonical, _ := Canonical(body)
	return Signature{
		Algorithm: Algorithm,
		Timestamp: ts,
		Value:     SignRaw(apiKey, apiSecret, method, canonical, strconv.FormatInt(ts, 10)),
	}
}

// SignRaw signs an already canonical body with the timestamp exactly as
// a peer supplied it. Verifiers use this so the header value is hashed
// byte for byte.
func SignRaw(apiKey, apiSecret, method string, body []byte, ts string) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write(Message(apiKey, method, body, ts))
	return hex.EncodeToString(mac.Sum(nil))
}

// Message builds the signed message.
func Message(apiKey, method string, body []byte, ts string) []byte {
	method = strings.ToLower(method)
	buf := make([]byte, 0, len(apiKey)+len(method)+len(body)+len(ts))
	buf = append(buf, apiKey...)
	buf = append(buf, method...)
	buf = append(buf, body...)
	buf = append(buf, ts...)
	return buf
}

// Equal reports whether two hex signatures match in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// Canonical returns the bytes that are both signed and transmitted for
// body. Strings and byte slices pass through untouched, nil and empty
// collections become empty and anything else is JSON encoded with
// EncodeBody.
func Canonical(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		raw, err := EncodeBody(v)
		if err != nil {
			return nil, err
		}
		switch string(raw) {
		case "null", "{}", "[]":
			return nil, nil
		}
		return raw, nil
	}
}

// EncodeBody JSON encodes v compactly without HTML escaping, so slashes
// and angle brackets reach the wire as written.
func EncodeBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
