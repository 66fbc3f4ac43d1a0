package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"driftsync/internal/domain"
	"driftsync/internal/repository"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// seedDevice creates a device with the dependency chain it needs and
// returns it.
func seedDevice(t *testing.T, r *Repository, name, serial string) *domain.Device {
	t.Helper()
	ctx := context.Background()

	m, err := r.GetOrCreateManufacturer(ctx, "Ubiquiti")
	require.NoError(t, err)
	dt, err := r.GetOrCreateDeviceType(ctx, m.ID, "U6-Pro")
	require.NoError(t, err)
	role, err := r.GetOrCreateDeviceRole(ctx, "Wireless AP", domain.DefaultRoleColor)
	require.NoError(t, err)

	d := &domain.Device{
		Name:         name,
		DeviceTypeID: dt.ID,
		RoleID:       role.ID,
		Serial:       serial,
	}
	require.NoError(t, r.CreateDevice(ctx, d))
	return d
}

func TestGetOrCreateManufacturer(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first, err := r.GetOrCreateManufacturer(ctx, "Ubiquiti")
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.Equal(t, "ubiquiti", first.Slug)

	second, err := r.GetOrCreateManufacturer(ctx, "Ubiquiti")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestDeviceLookups(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	site := &domain.Site{Name: "Home Lab"}
	require.NoError(t, r.CreateSite(ctx, site))

	d := seedDevice(t, r, "ap-attic", "ABC123")
	d.SiteID = &site.ID
	require.NoError(t, r.UpdateDevice(ctx, d))

	t.Run("by serial", func(t *testing.T) {
		got, err := r.FindDeviceBySerial(ctx, "ABC123")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, d.ID, got.ID)

		miss, err := r.FindDeviceBySerial(ctx, "NOPE")
		require.NoError(t, err)
		require.Nil(t, miss)
	})

	t.Run("by interface mac", func(t *testing.T) {
		iface := &domain.Interface{DeviceID: d.ID, Name: "mgmt", Type: "virtual", MAC: "AABBCCDDEEFF"}
		require.NoError(t, r.CreateInterface(ctx, iface))

		got, err := r.FindDeviceByInterfaceMAC(ctx, "AABBCCDDEEFF")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, d.ID, got.ID)
	})

	t.Run("by name scoped to site", func(t *testing.T) {
		got, err := r.FindDeviceByName(ctx, "ap-attic", "Home Lab")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, d.ID, got.ID)

		miss, err := r.FindDeviceByName(ctx, "ap-attic", "Other Site")
		require.NoError(t, err)
		require.Nil(t, miss)
	})

	t.Run("get missing wraps ErrNotFound", func(t *testing.T) {
		_, err := r.GetDevice(ctx, 9999)
		require.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestFindDeviceBySerialLowestID(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	first := seedDevice(t, r, "dup-a", "SAME")
	seedDevice(t, r, "dup-b", "SAME")

	got, err := r.FindDeviceBySerial(ctx, "SAME")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}

func TestVLANRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	site := &domain.Site{Name: "Branch"}
	require.NoError(t, r.CreateSite(ctx, site))

	group, err := r.GetOrCreateVLANGroup(ctx, "branch-vlans", "branch-vlans", &site.ID)
	require.NoError(t, err)

	v := &domain.VLAN{VID: 20, Name: "IoT", SiteID: &site.ID, GroupID: &group.ID}
	require.NoError(t, r.CreateVLAN(ctx, v))

	got, err := r.FindVLAN(ctx, 20, "Branch")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, v.ID, got.ID)
	require.Equal(t, "IoT", got.Name)
	require.Equal(t, domain.StatusActive, got.Status)

	miss, err := r.FindVLAN(ctx, 20, "Elsewhere")
	require.NoError(t, err)
	require.Nil(t, miss)

	v.Name = "IoT-renamed"
	require.NoError(t, r.UpdateVLAN(ctx, v))
	got, err = r.GetVLAN(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "IoT-renamed", got.Name)
}

func TestIPAddressRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	ip := &domain.IPAddress{Address: "192.168.1.10/24", DNSName: "ap-attic"}
	require.NoError(t, r.CreateIPAddress(ctx, ip))
	require.NotZero(t, ip.ID)

	got, err := r.FindIPAddress(ctx, "192.168.1.10/24")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, ip.ID, got.ID)

	miss, err := r.FindIPAddress(ctx, "10.0.0.1/24")
	require.NoError(t, err)
	require.Nil(t, miss)
}

func TestTenantLookupOnly(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	miss, err := r.FindTenantByName(ctx, "Home")
	require.NoError(t, err)
	require.Nil(t, miss)

	tenant := &domain.Tenant{Name: "Home"}
	require.NoError(t, r.CreateTenant(ctx, tenant))

	got, err := r.FindTenantByName(ctx, "Home")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, tenant.ID, got.ID)
}

func TestTagObjectIdempotent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	d := seedDevice(t, r, "sw-core", "SW1")
	tag, err := r.GetOrCreateTag(ctx, "udm-discovered", "udm-discovered")
	require.NoError(t, err)

	require.NoError(t, r.TagObject(ctx, tag.ID, d.Ref()))
	require.NoError(t, r.TagObject(ctx, tag.ID, d.Ref()))
}

func TestResolve(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	d := seedDevice(t, r, "gw", "GW1")

	got, err := r.Resolve(ctx, d.Ref())
	require.NoError(t, err)
	dev, ok := got.(*domain.Device)
	require.True(t, ok)
	require.Equal(t, d.ID, dev.ID)

	t.Run("dangling", func(t *testing.T) {
		got, err := r.Resolve(ctx, domain.ObjectRef{Type: domain.TypeDevice, ID: 4242})
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.ObjectRef{Type: "prefix", ID: 1})
		require.Error(t, err)
	})
}
