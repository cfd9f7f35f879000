package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSecret_String(t *testing.T) {
	tests := []struct {
		name     string
		secret   Secret
		expected string
	}{
		{"empty", Secret(""), ""},
		{"one char", Secret("a"), "****"},
		{"four chars", Secret("abcd"), "****"},
		{"jwt secret", Secret("dev-secret"), "de****et"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.secret.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSecret_ValueAndIsEmpty(t *testing.T) {
	if Secret("token").Value() != "token" {
		t.Error("Value() should return the raw secret")
	}
	if !Secret("").IsEmpty() || Secret("x").IsEmpty() {
		t.Error("IsEmpty() mismatch")
	}
}

func TestSecret_JSONRoundTripMasksOutput(t *testing.T) {
	var s Secret
	if err := json.Unmarshal([]byte(`"password123"`), &s); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if s.Value() != "password123" {
		t.Errorf("UnmarshalJSON() value = %q", s.Value())
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(data) != `"pa****23"` {
		t.Errorf("MarshalJSON() = %s", data)
	}
}

func TestSecret_RootDumpDoesNotLeak(t *testing.T) {
	in := `
live:
  token: glsa_live_token_value
server:
  auth:
    enabled: true
    jwt_secret: super-secret-signing-key
broker:
  redis:
    password: redis-password
`
	var cfg Root
	if err := yaml.Unmarshal([]byte(in), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if cfg.Server.Auth.JWTSecret.Value() != "super-secret-signing-key" {
		t.Errorf("JWTSecret = %q", cfg.Server.Auth.JWTSecret.Value())
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		t.Fatalf("yaml.Marshal() error = %v", err)
	}
	for _, raw := range []string{"glsa_live_token_value", "super-secret-signing-key", "redis-password"} {
		if strings.Contains(string(out), raw) {
			t.Errorf("YAML dump leaks %q", raw)
		}
	}

	js, err := json.Marshal(&cfg)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(js), "super-secret-signing-key") {
		t.Error("JSON dump leaks the jwt secret")
	}
}
