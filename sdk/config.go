package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryWaitMin  = time.Second
	defaultRetryWaitMax  = 30 * time.Second
	defaultTimeout       = 30 * time.Second
)

// ClientConfig configures a Client.
//
// An agent sets NodeToken. An operator tool sets AdminToken and TenantID.
// Both may be set on the same client.
type ClientConfig struct {
	// BaseURLs lists control plane instances in the order they are tried
	BaseURLs []string

	NodeToken string

	AdminToken string
	TenantID   string

	// HTTPClient overrides the default client built from Timeout
	HTTPClient *http.Client

	// RetryAttempts is the number of retries per instance. Zero uses the
	// default of 3, a negative value disables retries.
	RetryAttempts int

	// RetryWaitMin and RetryWaitMax bound the backoff between retries
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Timeout applies to each attempt of the default HTTP client
	Timeout time.Duration
}

// Validate checks the configuration, normalizes the base URLs and fills in defaults.
func (c *ClientConfig) Validate() error {
	if len(c.BaseURLs) == 0 {
		return fmt.Errorf("%w: at least one base URL is required", ErrInvalidConfig)
	}
	for i, raw := range c.BaseURLs {
		normalized, err := normalizeBaseURL(raw)
		if err != nil {
			return fmt.Errorf("%w: base URL %d: %v", ErrInvalidConfig, i, err)
		}
		c.BaseURLs[i] = normalized
	}

	if c.NodeToken == "" && c.AdminToken == "" {
		return fmt.Errorf("%w: a node token or an admin token is required", ErrInvalidConfig)
	}
	if c.AdminToken != "" && strings.TrimSpace(c.TenantID) == "" {
		return fmt.Errorf("%w: a tenant is required with an admin token", ErrInvalidConfig)
	}

	switch {
	case c.RetryAttempts == 0:
		c.RetryAttempts = defaultRetryAttempts
	case c.RetryAttempts < 0:
		c.RetryAttempts = 0
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = defaultRetryWaitMin
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		c.RetryWaitMax = max(defaultRetryWaitMax, c.RetryWaitMin)
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: c.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "", errors.New("empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%q must start with http:// or https://", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%q has no host", raw)
	}
	return raw, nil
}
