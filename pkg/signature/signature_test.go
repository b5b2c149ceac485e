package signature

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestSign_KnownVector(t *testing.T) {
	got := Sign("k1", "s1", "post", `{"a":1}`, 1700000000)

	want := "eeed3c403150ca32615d3f5fbb191891e7740c5b40d202c1dacc26aca3d06ebb"
	if got.Value != want {
		t.Errorf("Expected %s, got %s", want, got.Value)
	}
	if got.Algorithm != "sha256" {
		t.Errorf("Expected sha256, got %s", got.Algorithm)
	}
	if got.Timestamp != 1700000000 {
		t.Errorf("Expected timestamp 1700000000, got %d", got.Timestamp)
	}
}

func TestSign_MethodIsLowerCased(t *testing.T) {
	upper := Sign("k1", "s1", "POST", `{"a":1}`, 1700000000)
	lower := Sign("k1", "s1", "post", `{"a":1}`, 1700000000)
	if upper.Value != lower.Value {
		t.Errorf("Expected method case to be ignored, got %s vs %s", upper.Value, lower.Value)
	}
}

func TestSign_EmptyBody(t *testing.T) {
	want := "3606869375e9eedd51e87b946135da34522b441a04d58689a7cf9e442c815c3a"
	for name, body := range map[string]any{
		"nil":    nil,
		"string": "",
		"bytes":  []byte{},
		"map":    map[string]any{},
		"slice":  []string{},
	} {
		got := Sign("k1", "s1", "GET", body, 1700000000)
		if got.Value != want {
			t.Errorf("%s: expected %s, got %s", name, want, got.Value)
		}
	}
}

func TestSign_UnencodableBody(t *testing.T) {
	body := map[string]any{"ratio": math.NaN()}
	if _, err := Canonical(body); err == nil {
		t.Fatal("Expected Canonical to report the encoding error")
	}
	got := Sign("k1", "s1", "POST", body, 1700000000)
	empty := Sign("k1", "s1", "POST", nil, 1700000000)
	if got != empty {
		t.Errorf("Expected an unencodable body to sign as empty, got %s", got.Value)
	}
}

func TestSign_Deterministic(t *testing.T) {
	body := map[string]any{"slugs": []string{"akismet", "hello-dolly"}, "force": true}
	a := Sign("key", "secret", "post", body, 1712345678)
	b := Sign("key", "secret", "post", body, 1712345678)
	if a != b {
		t.Errorf("Expected identical signatures, got %v and %v", a, b)
	}
}

func TestSign_StructuredMatchesEncoded(t *testing.T) {
	body := map[string]any{"url": "https://example.com/wp-admin/", "html": "<b>&</b>"}

	raw, err := EncodeBody(body)
	if err != nil {
		t.Fatalf("EncodeBody failed: %v", err)
	}
	if string(raw) != `{"html":"<b>&</b>","url":"https://example.com/wp-admin/"}` {
		t.Errorf("Unexpected encoding: %s", raw)
	}

	structured := Sign("k", "s", "post", body, 1)
	encoded := Sign("k", "s", "post", raw, 1)
	if structured.Value != encoded.Value {
		t.Errorf("Expected structured and pre-encoded bodies to sign the same")
	}

	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(back, body) {
		t.Errorf("Expected %v, got %v", body, back)
	}
}

func TestSignRaw_MatchesSign(t *testing.T) {
	s := Sign("k1", "s1", "post", `{"a":1}`, 1700000000)
	raw := SignRaw("k1", "s1", "POST", []byte(`{"a":1}`), "1700000000")
	if !Equal(s.Value, raw) {
		t.Errorf("Expected SignRaw to match Sign")
	}
}

func TestSign_InputsAffectSignature(t *testing.T) {
	base := Sign("k1", "s1", "post", `{"a":1}`, 1700000000).Value
	variants := map[string]string{
		"key":       Sign("k2", "s1", "post", `{"a":1}`, 1700000000).Value,
		"secret":    Sign("k1", "s2", "post", `{"a":1}`, 1700000000).Value,
		"method":    Sign("k1", "s1", "put", `{"a":1}`, 1700000000).Value,
		"body":      Sign("k1", "s1", "post", `{"a":2}`, 1700000000).Value,
		"timestamp": Sign("k1", "s1", "post", `{"a":1}`, 1700000001).Value,
	}
	for name, v := range variants {
		if v == base {
			t.Errorf("Changing %s did not change the signature", name)
		}
	}
}

func TestMessage_NoDelimiter(t *testing.T) {
	got := string(Message("k1", "POST", []byte(`{"a":1}`), "1700000000"))
	if got != `k1post{"a":1}1700000000` {
		t.Errorf("Unexpected message %q", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("abc", "abc") {
		t.Error("Expected equal strings to match")
	}
	if Equal("abc", "abd") || Equal("abc", "ab") {
		t.Error("Expected different strings not to match")
	}
}
