package feed

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnectionConfig holds everything needed to reach the feed. It is copied on
// construction and never mutated afterwards.
type ConnectionConfig struct {
	Scheme      string   // "ws" or "wss"
	Host        string   // host[:port], optionally followed by a path
	TokenParam  string   // query parameter carrying the access token
	AccessToken string   // feed credential
	Symbols     []string // symbols the consumer subscribes to, in order
}

func (c ConnectionConfig) validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", ErrInvalidConfig)
	}
	if c.TokenParam == "" {
		return fmt.Errorf("%w: token parameter name is required", ErrInvalidConfig)
	}
	return nil
}

func (c ConnectionConfig) clone() ConnectionConfig {
	c.Symbols = append([]string(nil), c.Symbols...)
	return c
}

// URL builds scheme://host?tokenParam=accessToken with standard query
// escaping. It fails when scheme or host is missing.
func (c ConnectionConfig) URL() (string, error) {
	u, err := c.url(c.AccessToken)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// RedactedURL is URL with the access token masked, for logging.
func (c ConnectionConfig) RedactedURL() string {
	u, err := c.url("xxxxx")
	if err != nil {
		return ""
	}
	return u.String()
}

func (c ConnectionConfig) url(token string) (*url.URL, error) {
	if c.Scheme == "" {
		return nil, fmt.Errorf("%w: scheme is required", ErrInvalidConfig)
	}
	host, path, _ := strings.Cut(strings.TrimSpace(c.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}

	u := &url.URL{Scheme: c.Scheme, Host: host}
	if path != "" {
		u.Path = "/" + path
	}
	if c.TokenParam != "" {
		u.RawQuery = url.Values{c.TokenParam: []string{token}}.Encode()
	}
	return u, nil
}
