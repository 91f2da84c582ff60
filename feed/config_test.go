package feed

import (
	"errors"
	"testing"
)

func TestConnectionConfigURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  ConnectionConfig
		want string
	}{
		{
			name: "plain",
			cfg:  ConnectionConfig{Scheme: "wss", Host: "example.com", TokenParam: "token", AccessToken: "abc123"},
			want: "wss://example.com?token=abc123",
		},
		{
			name: "escaped token",
			cfg:  ConnectionConfig{Scheme: "wss", Host: "example.com", TokenParam: "token", AccessToken: "a b&c=d"},
			want: "wss://example.com?token=a+b%26c%3Dd",
		},
		{
			name: "host with port and path",
			cfg:  ConnectionConfig{Scheme: "ws", Host: "127.0.0.1:8080/stream", TokenParam: "key", AccessToken: "k"},
			want: "ws://127.0.0.1:8080/stream?key=k",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.cfg.URL()
			if err != nil {
				t.Fatalf("URL: %v", err)
			}
			if got != tc.want {
				t.Fatalf("URL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConnectionConfigURLMissingParts(t *testing.T) {
	for _, cfg := range []ConnectionConfig{
		{Host: "example.com", TokenParam: "token", AccessToken: "x"},
		{Scheme: "wss", Host: "  ", TokenParam: "token", AccessToken: "x"},
	} {
		if _, err := cfg.URL(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("URL(%+v) error = %v, want ErrInvalidConfig", cfg, err)
		}
	}
}

func TestConnectionConfigRedactedURL(t *testing.T) {
	cfg := ConnectionConfig{Scheme: "wss", Host: "example.com", TokenParam: "token", AccessToken: "secret"}
	if got := cfg.RedactedURL(); got != "wss://example.com?token=xxxxx" {
		t.Fatalf("RedactedURL = %q", got)
	}
}

func TestConnectionConfigValidate(t *testing.T) {
	ok := ConnectionConfig{Scheme: "wss", Host: "example.com", TokenParam: "token", AccessToken: "abc"}
	if err := ok.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	noHost := ok
	noHost.Host = ""
	noToken := ok
	noToken.AccessToken = ""
	noParam := ok
	noParam.TokenParam = ""

	for _, cfg := range []ConnectionConfig{noHost, noToken, noParam} {
		if err := cfg.validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("validate(%+v) = %v, want ErrInvalidConfig", cfg, err)
		}
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateIdle:         "idle",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateDisconnected: "disconnected",
		State(42):         "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), w)
		}
	}
}
