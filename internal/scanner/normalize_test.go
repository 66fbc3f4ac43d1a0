package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftsync/internal/domain"
)

func TestNormalizeDevice(t *testing.T) {
	cfg := domain.SourceConfig{}

	t.Run("serial identity", func(t *testing.T) {
		obj := NormalizeDevice(map[string]any{
			"serial": "ABC123",
			"name":   "sw-core",
			"model":  "USW-24",
			"mac":    "aa:bb:cc:dd:ee:ff",
			"ip":     "10.0.0.5",
		}, cfg, "Home")
		require.NotNil(t, obj)
		assert.Equal(t, domain.TypeDevice, obj.Type)
		assert.Equal(t, "ABC123", obj.IdentityKey)
		assert.Equal(t, "sw-core", obj.String("name"))
		assert.Equal(t, "Network Switch", obj.String("role"))
		assert.Equal(t, "Home", obj.String("site_name"))
		assert.Equal(t, "Ubiquiti", obj.String("manufacturer"))
	})

	t.Run("mac fallback identity", func(t *testing.T) {
		obj := NormalizeDevice(map[string]any{
			"macAddress": "aa:bb:cc:dd:ee:ff",
		}, cfg, "")
		require.NotNil(t, obj)
		assert.Equal(t, "AABBCCDDEEFF", obj.IdentityKey)
		// No name anywhere falls back to the identity tail.
		assert.Equal(t, "UniFi-DDEEFF", obj.String("name"))
		assert.Equal(t, "Unknown", obj.String("model"))
	})

	t.Run("no identity drops record", func(t *testing.T) {
		assert.Nil(t, NormalizeDevice(map[string]any{"name": "ghost"}, cfg, ""))
	})

	t.Run("manufacturer override", func(t *testing.T) {
		obj := NormalizeDevice(map[string]any{"serial": "X"},
			domain.SourceConfig{"manufacturer": "UI"}, "")
		require.NotNil(t, obj)
		assert.Equal(t, "UI", obj.String("manufacturer"))
	})
}

func TestInferDeviceRole(t *testing.T) {
	cfg := domain.SourceConfig{}
	cases := []struct {
		name string
		raw  map[string]any
		want string
	}{
		{"u6 model", map[string]any{"model": "U6-Pro"}, "Wireless AP"},
		{"uap model", map[string]any{"model": "UAP-AC-Lite"}, "Wireless AP"},
		{"access point flag", map[string]any{"model": "X", "is_access_point": true}, "Wireless AP"},
		{"uap type", map[string]any{"model": "X", "type": "uap"}, "Wireless AP"},
		{"udm model", map[string]any{"model": "UDM-Pro"}, "Router"},
		{"gateway type", map[string]any{"model": "X", "type": "gateway"}, "Router"},
		// Wireless indicators beat gateway indicators.
		{"wireless beats gateway", map[string]any{"model": "U6-UDM-hybrid"}, "Wireless AP"},
		{"default lan", map[string]any{"model": "USW-24"}, "Network Switch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, inferDeviceRole(tc.raw, cfg))
		})
	}

	t.Run("config override", func(t *testing.T) {
		cfg := domain.SourceConfig{"roles": map[string]any{"lan": "Switch"}}
		assert.Equal(t, "Switch", inferDeviceRole(map[string]any{"model": "USW"}, cfg))
	})
}

func TestNormalizeVLAN(t *testing.T) {
	t.Run("basic", func(t *testing.T) {
		obj := NormalizeVLAN(map[string]any{"vlanId": float64(20), "name": "IoT"}, "Home")
		require.NotNil(t, obj)
		assert.Equal(t, domain.TypeVLAN, obj.Type)
		assert.Equal(t, "vlan:20", obj.IdentityKey)
		assert.Equal(t, 20, obj.Int("vid"))
		assert.Equal(t, "IoT", obj.String("name"))
	})

	t.Run("name fallback", func(t *testing.T) {
		obj := NormalizeVLAN(map[string]any{"vlanId": 30}, "")
		require.NotNil(t, obj)
		assert.Equal(t, "VLAN-30", obj.String("name"))
	})

	t.Run("no vid drops record", func(t *testing.T) {
		assert.Nil(t, NormalizeVLAN(map[string]any{"name": "Default"}, "Home"))
	})
}

func TestNormalizeClient(t *testing.T) {
	cfg := domain.SourceConfig{}

	t.Run("wireless client", func(t *testing.T) {
		obj := NormalizeClient(map[string]any{
			"name":     "alice-laptop",
			"hostname": "Alice Laptop",
			"mac":      "11:22:33:44:55:66",
			"ip":       "10.0.0.50",
			"type":     "WIRELESS",
		}, cfg)
		require.NotNil(t, obj)
		assert.Equal(t, domain.TypeDevice, obj.Type)
		assert.Equal(t, "client:alice-laptop:112233445566", obj.IdentityKey)
		assert.Equal(t, "Wireless Client", obj.String("role"))
		assert.Equal(t, "alice-laptop [11:22:33:44:55:66] (WIRELESS)", obj.String("description"))
		assert.Equal(t, "alice-laptop", obj.String("dns_name"))
	})

	t.Run("wired flag", func(t *testing.T) {
		obj := NormalizeClient(map[string]any{
			"hostname": "nas",
			"mac":      "11:22:33:44:55:66",
			"is_wired": true,
		}, cfg)
		require.NotNil(t, obj)
		assert.Equal(t, "Wired Client", obj.String("role"))
	})

	t.Run("name fallback from mac", func(t *testing.T) {
		obj := NormalizeClient(map[string]any{"mac": "11:22:33:44:55:66"}, cfg)
		require.NotNil(t, obj)
		assert.Equal(t, "Client-45566", obj.String("name"))
	})

	t.Run("no mac drops record", func(t *testing.T) {
		assert.Nil(t, NormalizeClient(map[string]any{"ip": "10.0.0.9"}, cfg))
	})

	t.Run("description format override", func(t *testing.T) {
		obj := NormalizeClient(map[string]any{"name": "tv", "mac": "aa:bb:cc:dd:ee:ff"},
			domain.SourceConfig{"client_description_format": "{hostname} via udm"})
		require.NotNil(t, obj)
		assert.Equal(t, "tv via udm", obj.String("description"))
	})
}
