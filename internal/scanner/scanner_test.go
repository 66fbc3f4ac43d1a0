package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsync/internal/domain"
	"driftsync/internal/unifi"
)

type fakeController struct {
	sites    []unifi.Site
	devices  map[string][]map[string]any
	clients  map[string][]map[string]any
	networks map[string][]map[string]any
	fetchErr error
}

func (f *fakeController) Connect(context.Context) error { return nil }
func (f *fakeController) Close()                        {}
func (f *fakeController) Sites() []unifi.Site           { return f.sites }

func (f *fakeController) Devices(_ context.Context, site string) ([]map[string]any, error) {
	return f.devices[site], f.fetchErr
}

func (f *fakeController) Clients(_ context.Context, site string) ([]map[string]any, error) {
	return f.clients[site], f.fetchErr
}

func (f *fakeController) Networks(_ context.Context, site string) ([]map[string]any, error) {
	return f.networks[site], f.fetchErr
}

func dialFake(ctrl *fakeController) DialFunc {
	return func(*domain.DiscoverySource, zerolog.Logger) (Controller, error) {
		return ctrl, nil
	}
}

func testSource() *domain.DiscoverySource {
	return &domain.DiscoverySource{
		Name:        "udm-home",
		Config:      domain.SourceConfig{"site_mappings": map[string]any{"default": "Home Lab"}},
		SyncDevices: true,
		SyncClients: true,
		SyncVLANs:   true,
	}
}

func TestScan(t *testing.T) {
	ctrl := &fakeController{
		sites: []unifi.Site{{ID: "s1", Name: "default"}},
		devices: map[string][]map[string]any{
			"default": {
				{"serial": "ABC123", "name": "sw1", "model": "USW-24"},
				{"name": "no-identity"}, // dropped
			},
		},
		networks: map[string][]map[string]any{
			"default": {
				{"vlanId": 20, "name": "IoT"},
				{"name": "untagged"}, // dropped
			},
		},
		clients: map[string][]map[string]any{
			"default": {
				{"hostname": "nas", "mac": "11:22:33:44:55:66", "is_wired": true},
			},
		},
	}

	s := New(dialFake(ctrl), zerolog.Nop())
	discovered, err := s.Scan(context.Background(), testSource())
	require.NoError(t, err)
	require.Len(t, discovered, 3)

	byKey := map[string]domain.DiscoveredObject{}
	for _, obj := range discovered {
		byKey[obj.IdentityKey] = obj
	}

	// Site mapping is applied before normalization.
	assert.Equal(t, "Home Lab", byKey["ABC123"].String("site_name"))
	assert.Equal(t, "Home Lab", byKey["vlan:20"].String("site_name"))
	assert.Contains(t, byKey, "client:nas:112233445566")
}

func TestScanTogglesGateChannels(t *testing.T) {
	ctrl := &fakeController{
		sites:   []unifi.Site{{ID: "s1", Name: "default"}},
		devices: map[string][]map[string]any{"default": {{"serial": "ABC123"}}},
		clients: map[string][]map[string]any{"default": {{"mac": "11:22:33:44:55:66"}}},
	}

	src := testSource()
	src.SyncClients = false
	src.SyncVLANs = false

	s := New(dialFake(ctrl), zerolog.Nop())
	discovered, err := s.Scan(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, discovered, 1)
	assert.Equal(t, "ABC123", discovered[0].IdentityKey)
}

func TestScanFetchFailureFailsScan(t *testing.T) {
	ctrl := &fakeController{
		sites:    []unifi.Site{{ID: "s1", Name: "default"}},
		fetchErr: errors.New("controller unreachable"),
	}

	s := New(dialFake(ctrl), zerolog.Nop())
	_, err := s.Scan(context.Background(), testSource())
	require.Error(t, err)
}

func TestDialRequiresHost(t *testing.T) {
	_, err := Dial(&domain.DiscoverySource{Name: "bad", Config: domain.SourceConfig{}}, zerolog.Nop())
	require.Error(t, err)
}
