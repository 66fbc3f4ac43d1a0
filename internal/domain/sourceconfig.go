package domain

// SourceConfig is the free-form configuration map attached to a discovery
// source. Keys recognized by the core: host, port, api_mode, site,
// verify_ssl, site_mappings, manufacturer, roles, tenant, discovery_tag,
// vlan_group_pattern, client_description_format, client_prefix_length.
type SourceConfig map[string]any

// Defaults applied when the corresponding config key is absent.
const (
	DefaultManufacturer     = "Ubiquiti"
	DefaultDiscoveryTag     = "udm-discovered"
	DefaultVLANGroupPattern = "{site_slug}-vlans"
	DefaultClientDescFormat = "{hostname} [{mac}] ({type})"
	DefaultClientPrefixLen  = 24
	DefaultRoleColor        = "9e9e9e"
)

// Str returns a string config value, or fallback if absent or not a string.
func (c SourceConfig) Str(key, fallback string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Int returns an integer config value, accepting the float64 form JSON
// decoding produces.
func (c SourceConfig) Int(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// Bool returns a boolean config value.
func (c SourceConfig) Bool(key string, fallback bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return fallback
}

// Role returns the configured name for a role kind (wireless, router, lan,
// client_wired, client_wireless) from the nested "roles" map, or fallback.
func (c SourceConfig) Role(kind, fallback string) string {
	roles, ok := c["roles"].(map[string]any)
	if !ok {
		return fallback
	}
	if v, ok := roles[kind].(string); ok && v != "" {
		return v
	}
	return fallback
}

// MapSite translates an external site name through the site_mappings table.
// Unmapped names pass through unchanged.
func (c SourceConfig) MapSite(name string) string {
	mappings, ok := c["site_mappings"].(map[string]any)
	if !ok {
		return name
	}
	if v, ok := mappings[name].(string); ok && v != "" {
		return v
	}
	return name
}
