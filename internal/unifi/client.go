// Package unifi is a thin read-only client for UniFi network controllers.
// It speaks both the Integration API (token auth, X-API-KEY header) and the
// legacy API (classic username/password auth with a session cookie).
package unifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Auth modes. Token mode talks to the Integration API; classic mode logs in
// with username/password and uses the legacy endpoints.
const (
	ModeToken   = "token"
	ModeClassic = "classic"
)

// Credential environment variables. Secrets never live in source config.
const (
	EnvToken    = "DRIFTSYNC_UNIFI_TOKEN"
	EnvUsername = "DRIFTSYNC_UNIFI_USERNAME"
	EnvPassword = "DRIFTSYNC_UNIFI_PASSWORD"
)

// Site is one controller site from the site catalog.
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	InternalRef string `json:"internal_reference,omitempty"`
	Desc        string `json:"desc,omitempty"`
}

// Config describes one controller connection.
type Config struct {
	// BaseURL is the controller root, e.g. https://192.168.1.1.
	BaseURL string
	// Mode is ModeToken or ModeClassic.
	Mode string
	// Site is the default site name used when a call passes "".
	Site string
	// VerifySSL enables TLS certificate verification. Controllers ship
	// self-signed certificates, so this is commonly off.
	VerifySSL bool
	// Token overrides the EnvToken variable when set.
	Token string
	// Timeout bounds each HTTP request. Zero means 30 seconds.
	Timeout time.Duration
}

// Client is a connected controller session. Connect must succeed before the
// listing calls are used. Client is not safe for concurrent use during
// Connect; after Connect it only reads.
type Client struct {
	cfg   Config
	http  *http.Client
	log   zerolog.Logger
	token string
	sites []Site
}

// NewClient builds an unconnected client.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("unifi: base URL required")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeToken
	}
	if cfg.Mode != ModeToken && cfg.Mode != ModeClassic {
		return nil, fmt.Errorf("unifi: unknown api mode %q", cfg.Mode)
	}
	if cfg.Site == "" {
		cfg.Site = "default"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("unifi: cookie jar: %w", err)
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL},
			},
		},
		log: log.With().Str("component", "unifi").Str("controller", cfg.BaseURL).Logger(),
	}, nil
}

// Connect authenticates and loads the site catalog.
func (c *Client) Connect(ctx context.Context) error {
	switch c.cfg.Mode {
	case ModeToken:
		c.token = c.cfg.Token
		if c.token == "" {
			c.token = os.Getenv(EnvToken)
		}
		if c.token == "" {
			return fmt.Errorf("unifi: %s not set", EnvToken)
		}
	case ModeClassic:
		username := os.Getenv(EnvUsername)
		password := os.Getenv(EnvPassword)
		if username == "" || password == "" {
			return fmt.Errorf("unifi: %s and %s must be set", EnvUsername, EnvPassword)
		}
		if err := c.login(ctx, username, password); err != nil {
			return err
		}
	}

	sites, err := c.fetchSites(ctx)
	if err != nil {
		return err
	}
	c.sites = sites
	c.log.Info().Int("sites", len(sites)).Msg("connected to controller")
	return nil
}

// Close releases the session. The controller session cookie is simply
// abandoned.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// Sites returns the site catalog loaded by Connect.
func (c *Client) Sites() []Site {
	return c.sites
}

func (c *Client) login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(map[string]any{
		"username":   username,
		"password":   password,
		"rememberMe": true,
	})
	if err != nil {
		return fmt.Errorf("unifi: marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("unifi: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unifi: login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unifi: login failed: status %d", resp.StatusCode)
	}
	c.log.Debug().Msg("classic authentication successful")
	return nil
}

// get performs an authenticated GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("unifi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Mode == ModeToken {
		req.Header.Set("X-API-KEY", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unifi: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unifi: GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unifi: decode %s: %w", path, err)
	}
	return nil
}

// integrationEnvelope is the Integration API list shape.
type integrationEnvelope struct {
	Data []map[string]any `json:"data"`
}

// legacyEnvelope is the legacy API list shape, with its rc status field.
type legacyEnvelope struct {
	Meta struct {
		RC string `json:"rc"`
	} `json:"meta"`
	Data []map[string]any `json:"data"`
}

func (c *Client) fetchSites(ctx context.Context) ([]Site, error) {
	if c.cfg.Mode == ModeToken {
		var env integrationEnvelope
		if err := c.get(ctx, "/proxy/network/integration/v1/sites?limit=1000", &env); err != nil {
			return nil, err
		}
		sites := make([]Site, 0, len(env.Data))
		for _, raw := range env.Data {
			s := Site{
				ID:          str(raw, "id"),
				Name:        str(raw, "name"),
				InternalRef: str(raw, "internalReference"),
			}
			if s.Name == "" {
				s.Name = s.InternalRef
			}
			s.Desc = s.Name
			sites = append(sites, s)
		}
		return sites, nil
	}

	var env legacyEnvelope
	if err := c.get(ctx, "/api/self/sites", &env); err != nil {
		return nil, err
	}
	if env.Meta.RC != "ok" {
		return nil, fmt.Errorf("unifi: list sites: rc %q", env.Meta.RC)
	}
	sites := make([]Site, 0, len(env.Data))
	for _, raw := range env.Data {
		s := Site{
			ID:   str(raw, "_id"),
			Name: str(raw, "name"),
			Desc: str(raw, "desc"),
		}
		if s.Desc == "" {
			s.Desc = s.Name
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// resolveSite finds a site by display name or internal reference.
func (c *Client) resolveSite(name string) (Site, bool) {
	for _, s := range c.sites {
		if s.Name == name || (s.InternalRef != "" && s.InternalRef == name) {
			return s, true
		}
	}
	return Site{}, false
}

// siteKey maps a display name to the key legacy endpoints use. Unknown
// names pass through unchanged, matching controller behaviour for the
// built-in "default" site.
func (c *Client) siteKey(name string) string {
	for _, s := range c.sites {
		if s.Desc == name || s.Name == name {
			return s.Name
		}
	}
	return name
}

func (c *Client) listIntegration(ctx context.Context, siteName, kind string) ([]map[string]any, error) {
	site, ok := c.resolveSite(siteName)
	if !ok {
		return nil, fmt.Errorf("unifi: site %q not found on controller", siteName)
	}
	var env integrationEnvelope
	path := fmt.Sprintf("/proxy/network/integration/v1/sites/%s/%s?limit=1000", site.ID, kind)
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) listLegacy(ctx context.Context, siteName, endpoint string) ([]map[string]any, error) {
	var env legacyEnvelope
	path := fmt.Sprintf("/proxy/network/api/s/%s/%s", c.siteKey(siteName), endpoint)
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	if env.Meta.RC != "ok" {
		return nil, fmt.Errorf("unifi: %s: rc %q", endpoint, env.Meta.RC)
	}
	return env.Data, nil
}

// Devices lists network devices on a site. An empty siteName uses the
// configured default site.
func (c *Client) Devices(ctx context.Context, siteName string) ([]map[string]any, error) {
	if siteName == "" {
		siteName = c.cfg.Site
	}
	if c.cfg.Mode == ModeToken {
		return c.listIntegration(ctx, siteName, "devices")
	}
	return c.listLegacy(ctx, siteName, "stat/device")
}

// Clients lists connected clients on a site.
func (c *Client) Clients(ctx context.Context, siteName string) ([]map[string]any, error) {
	if siteName == "" {
		siteName = c.cfg.Site
	}
	if c.cfg.Mode == ModeToken {
		return c.listIntegration(ctx, siteName, "clients")
	}
	return c.listLegacy(ctx, siteName, "stat/sta")
}

// Networks lists networks (VLANs) on a site.
func (c *Client) Networks(ctx context.Context, siteName string) ([]map[string]any, error) {
	if siteName == "" {
		siteName = c.cfg.Site
	}
	if c.cfg.Mode == ModeToken {
		return c.listIntegration(ctx, siteName, "networks")
	}
	return c.listLegacy(ctx, siteName, "rest/networkconf")
}

func str(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
