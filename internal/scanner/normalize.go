package scanner

import (
	"fmt"
	"strings"

	"driftsync/internal/domain"
)

// Default role names, overridable per source via the roles config map.
const (
	RoleWireless       = "Wireless AP"
	RoleRouter         = "Router"
	RoleLAN            = "Network Switch"
	RoleClientWired    = "Wired Client"
	RoleClientWireless = "Wireless Client"
)

// NormalizeDevice maps one raw controller device record. Identity is the
// serial number if present, else the colon-stripped upper-cased MAC; a
// record with neither is dropped.
func NormalizeDevice(raw map[string]any, cfg domain.SourceConfig, siteName string) *domain.DiscoveredObject {
	serial := rawStr(raw, "serial")
	if serial == "" {
		serial = normMAC(rawStr(raw, "mac", "macAddress"))
	}
	if serial == "" {
		return nil
	}

	name := rawStr(raw, "name", "hostname")
	if name == "" {
		name = "UniFi-" + tail(serial, 6)
	}
	model := rawStr(raw, "model")
	if model == "" {
		model = "Unknown"
	}

	return &domain.DiscoveredObject{
		Type:        domain.TypeDevice,
		IdentityKey: serial,
		Data: map[string]any{
			"name":         name,
			"serial":       serial,
			"model":        model,
			"manufacturer": cfg.Str("manufacturer", domain.DefaultManufacturer),
			"role":         inferDeviceRole(raw, cfg),
			"mac":          rawStr(raw, "mac", "macAddress"),
			"ip":           rawStr(raw, "ip", "ipAddress"),
			"site_name":    siteName,
		},
		Raw: raw,
	}
}

// inferDeviceRole runs the fixed keyword chain: wireless indicators beat
// gateway indicators, everything else is a LAN switch.
func inferDeviceRole(raw map[string]any, cfg domain.SourceConfig) string {
	model := strings.ToUpper(rawStr(raw, "model"))
	devType := strings.ToLower(rawStr(raw, "type"))
	isAP := rawBool(raw, "is_access_point") || devType == "uap"

	switch {
	case isAP || strings.Contains(model, "UAP") || strings.Contains(model, "U6") || strings.Contains(model, "U7"):
		return cfg.Role("wireless", RoleWireless)
	case strings.Contains(model, "UDM") || strings.Contains(model, "USG") ||
		strings.Contains(model, "UXG") || strings.Contains(devType, "gateway"):
		return cfg.Role("router", RoleRouter)
	default:
		return cfg.Role("lan", RoleLAN)
	}
}

// NormalizeVLAN maps one raw network record. Networks without a VLAN id
// (e.g. the untagged default network) are dropped.
func NormalizeVLAN(raw map[string]any, siteName string) *domain.DiscoveredObject {
	vid := rawInt(raw, "vlanId")
	if vid == 0 {
		return nil
	}
	name := rawStr(raw, "name")
	if name == "" {
		name = fmt.Sprintf("VLAN-%d", vid)
	}

	return &domain.DiscoveredObject{
		Type:        domain.TypeVLAN,
		IdentityKey: fmt.Sprintf("vlan:%d", vid),
		Data: map[string]any{
			"vid":       vid,
			"name":      name,
			"site_name": siteName,
		},
		Raw: raw,
	}
}

// NormalizeClient maps one raw client record into the device channel with a
// client role. Clients without a MAC are dropped.
func NormalizeClient(raw map[string]any, cfg domain.SourceConfig) *domain.DiscoveredObject {
	mac := rawStr(raw, "mac", "macAddress")
	macKey := normMAC(mac)
	if macKey == "" {
		return nil
	}

	name := rawStr(raw, "name", "hostname")
	if name == "" {
		name = "Client-" + tail(macKey, 5)
	}
	clientType := rawStr(raw, "type")
	if clientType == "" {
		clientType = "unknown"
	}

	role := cfg.Role("client_wireless", RoleClientWireless)
	if clientWired(raw, clientType) {
		role = cfg.Role("client_wired", RoleClientWired)
	}

	manufacturer := rawStr(raw, "oui")
	if manufacturer == "" {
		manufacturer = "Unknown"
	}

	format := cfg.Str("client_description_format", domain.DefaultClientDescFormat)
	description := strings.NewReplacer(
		"{hostname}", name,
		"{mac}", mac,
		"{type}", clientType,
	).Replace(format)

	hostname := rawStr(raw, "hostname")
	dnsName := strings.ReplaceAll(strings.ToLower(hostname), " ", "-")

	return &domain.DiscoveredObject{
		Type:        domain.TypeDevice,
		IdentityKey: fmt.Sprintf("client:%s:%s", name, macKey),
		Data: map[string]any{
			"name":          name,
			"serial":        "",
			"model":         "Client",
			"manufacturer":  manufacturer,
			"role":          role,
			"mac":           mac,
			"ip":            rawStr(raw, "ip", "ipAddress"),
			"description":   description,
			"dns_name":      dnsName,
			"prefix_length": cfg.Int("client_prefix_length", domain.DefaultClientPrefixLen),
			"site_name":     "",
		},
		Raw: raw,
	}
}

func clientWired(raw map[string]any, clientType string) bool {
	if v, ok := raw["is_wired"].(bool); ok {
		return v
	}
	return strings.EqualFold(clientType, "wired")
}

// rawStr returns the first non-empty string among the given keys.
func rawStr(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func rawInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func rawBool(m map[string]any, key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}

// normMAC strips colons and upper-cases a MAC address.
func normMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(mac, ":", ""))
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
