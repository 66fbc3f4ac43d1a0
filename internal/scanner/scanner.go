// Package scanner turns raw controller records into normalized
// DiscoveredObjects. Normalization is pure per record: a record missing its
// mandatory identity fields is dropped, never an error.
package scanner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"driftsync/internal/domain"
	"driftsync/internal/unifi"
)

// Controller is the connected transport the scanner reads from.
type Controller interface {
	Connect(ctx context.Context) error
	Close()
	Sites() []unifi.Site
	Devices(ctx context.Context, siteName string) ([]map[string]any, error)
	Clients(ctx context.Context, siteName string) ([]map[string]any, error)
	Networks(ctx context.Context, siteName string) ([]map[string]any, error)
}

// DialFunc builds a controller client from a source's configuration.
type DialFunc func(src *domain.DiscoverySource, log zerolog.Logger) (Controller, error)

// Dial is the production DialFunc.
func Dial(src *domain.DiscoverySource, log zerolog.Logger) (Controller, error) {
	host := src.Config.Str("host", "")
	if host == "" {
		return nil, fmt.Errorf("source %q: no host configured", src.Name)
	}
	return unifi.NewClient(unifi.Config{
		BaseURL:   fmt.Sprintf("https://%s:%d", host, src.Config.Int("port", 443)),
		Mode:      src.Config.Str("api_mode", unifi.ModeToken),
		Site:      src.Config.Str("site", "default"),
		VerifySSL: src.Config.Bool("verify_ssl", false),
		Token:     src.Token,
	}, log)
}

// Scanner runs full discovery scans against sources.
type Scanner struct {
	dial DialFunc
	log  zerolog.Logger
}

// New builds a Scanner. A nil dial uses the production controller client.
func New(dial DialFunc, log zerolog.Logger) *Scanner {
	if dial == nil {
		dial = Dial
	}
	return &Scanner{dial: dial, log: log.With().Str("component", "scanner").Logger()}
}

// Scan connects to the source's controller and returns the union of
// normalized objects across every site the controller exposes, honoring
// the source's per-type sync toggles. Any fetch failure fails the scan.
func (s *Scanner) Scan(ctx context.Context, src *domain.DiscoverySource) ([]domain.DiscoveredObject, error) {
	ctrl, err := s.dial(src, s.log)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect source %q: %w", src.Name, err)
	}
	defer ctrl.Close()

	var discovered []domain.DiscoveredObject
	for _, site := range ctrl.Sites() {
		localSite := src.Config.MapSite(site.Name)
		s.log.Info().Str("source", src.Name).
			Str("controller_site", site.Name).Str("local_site", localSite).
			Msg("scanning site")

		if src.SyncDevices {
			devices, err := ctrl.Devices(ctx, site.Name)
			if err != nil {
				return nil, fmt.Errorf("list devices: %w", err)
			}
			for _, raw := range devices {
				if obj := NormalizeDevice(raw, src.Config, localSite); obj != nil {
					discovered = append(discovered, *obj)
				}
			}
		}

		if src.SyncVLANs {
			networks, err := ctrl.Networks(ctx, site.Name)
			if err != nil {
				return nil, fmt.Errorf("list networks: %w", err)
			}
			for _, raw := range networks {
				if obj := NormalizeVLAN(raw, localSite); obj != nil {
					discovered = append(discovered, *obj)
				}
			}
		}

		if src.SyncClients {
			clients, err := ctrl.Clients(ctx, site.Name)
			if err != nil {
				return nil, fmt.Errorf("list clients: %w", err)
			}
			for _, raw := range clients {
				if obj := NormalizeClient(raw, src.Config); obj != nil {
					discovered = append(discovered, *obj)
				}
			}
		}
	}

	s.log.Info().Str("source", src.Name).Int("discovered", len(discovered)).Msg("scan fetch complete")
	return discovered, nil
}

// Test connects to the source's controller without scanning and returns
// the number of sites the controller exposes.
func (s *Scanner) Test(ctx context.Context, src *domain.DiscoverySource) (int, error) {
	ctrl, err := s.dial(src, s.log)
	if err != nil {
		return 0, err
	}
	if err := ctrl.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect source %q: %w", src.Name, err)
	}
	defer ctrl.Close()
	return len(ctrl.Sites()), nil
}
