package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Ubiquiti":        "ubiquiti",
		"Network Switch":  "network-switch",
		"USW-24-PoE":      "usw-24-poe",
		"  spaced  out  ": "spaced-out",
		"UPPER":           "upper",
		"":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "Slugify(%q)", in)
	}
}

func TestSourceConfigAccessors(t *testing.T) {
	cfg := SourceConfig{
		"host":                 "udm.example.net",
		"port":                 float64(8443), // as decoded from JSON
		"verify_ssl":           true,
		"client_prefix_length": 16,
		"roles": map[string]any{
			"wireless": "Access Point",
		},
		"site_mappings": map[string]any{
			"default": "HQ",
		},
	}

	t.Run("string values with fallback", func(t *testing.T) {
		assert.Equal(t, "udm.example.net", cfg.Str("host", ""))
		assert.Equal(t, "token", cfg.Str("api_mode", "token"))
	})

	t.Run("int values accept json float64", func(t *testing.T) {
		assert.Equal(t, 8443, cfg.Int("port", 443))
		assert.Equal(t, 16, cfg.Int("client_prefix_length", 24))
		assert.Equal(t, 443, cfg.Int("missing", 443))
	})

	t.Run("bool values", func(t *testing.T) {
		assert.True(t, cfg.Bool("verify_ssl", false))
		assert.False(t, cfg.Bool("missing", false))
	})

	t.Run("role overrides", func(t *testing.T) {
		assert.Equal(t, "Access Point", cfg.Role("wireless", "Wireless AP"))
		assert.Equal(t, "Router", cfg.Role("router", "Router"))
		assert.Equal(t, "Router", SourceConfig{}.Role("router", "Router"))
	})

	t.Run("site mapping passthrough", func(t *testing.T) {
		assert.Equal(t, "HQ", cfg.MapSite("default"))
		assert.Equal(t, "branch", cfg.MapSite("branch"))
	})
}

func TestObjectRef(t *testing.T) {
	assert.True(t, ObjectRef{}.IsZero())
	ref := ObjectRef{Type: TypeDevice, ID: 12}
	assert.False(t, ref.IsZero())
	assert.Equal(t, "device/12", ref.String())
}

func TestObjectTypeValid(t *testing.T) {
	assert.True(t, TypeDevice.Valid())
	assert.True(t, TypeVLAN.Valid())
	assert.True(t, TypeIPAddress.Valid())
	assert.False(t, ObjectType("client").Valid())
}

func TestDiscoveredObjectFieldAccess(t *testing.T) {
	obj := DiscoveredObject{
		Type:        TypeVLAN,
		IdentityKey: "vlan:20",
		Data:        map[string]any{"name": "servers", "vid": float64(20)},
	}
	assert.Equal(t, "servers", obj.String("name"))
	assert.Equal(t, "", obj.String("missing"))
	assert.Equal(t, 20, obj.Int("vid"))
}
