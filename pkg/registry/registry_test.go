package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
)

func testHost(name string) *model.Host { return &model.Host{Name: name, Cores: 1, FlopsPerCore: 1} }

type fixedProbe map[[2]string]float64

func (p fixedProbe) Distance(fromHost, toHost string) float64 { return p[[2]string{fromHost, toHost}] }

func TestAddEntryIsIdempotent(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("host1"), clk, mbox)
	file := model.File{ID: "f1", SizeBytes: 1024}
	loc := model.SimpleLocation("storage1", "/data", "f1.bin")

	reg.AddEntry(file, loc)
	reg.AddEntry(file, loc)

	locs := reg.Lookup("f1", "")
	require.Len(t, locs, 1)
	assert.True(t, locs[0].Equal(loc))
}

func TestRemoveEntryIsIdempotentAndLeavesOtherLocations(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("host1"), clk, mbox)
	file := model.File{ID: "f1", SizeBytes: 1024}
	locA := model.SimpleLocation("storage1", "/data", "f1.bin")
	locB := model.SimpleLocation("storage2", "/data", "f1.bin")

	reg.AddEntry(file, locA)
	reg.AddEntry(file, locB)

	reg.RemoveEntry("f1", locA)
	reg.RemoveEntry("f1", locA) // idempotent: already gone

	locs := reg.Lookup("f1", "")
	require.Len(t, locs, 1)
	assert.True(t, locs[0].Equal(locB))

	reg.RemoveEntry("f1", locB)
	assert.Empty(t, reg.Lookup("f1", ""))
}

// TestHasLocationMatchesLookup exercises the universal property that a
// location is in the registry's set for a file iff Lookup reports it —
// the registry-side half of "registry[f] contains s iff s.hasFile(f)".
func TestHasLocationMatchesLookup(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("host1"), clk, mbox)
	file := model.File{ID: "f1", SizeBytes: 1024}
	loc := model.SimpleLocation("storage1", "/data", "f1.bin")
	other := model.SimpleLocation("storage2", "/data", "f1.bin")

	assert.False(t, reg.HasLocation("f1", loc))
	reg.AddEntry(file, loc)
	assert.True(t, reg.HasLocation("f1", loc))
	assert.False(t, reg.HasLocation("f1", other))
}

func TestLookupWithoutProbeReturnsInsertionOrder(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("host1"), clk, mbox)
	file := model.File{ID: "f1", SizeBytes: 1024}
	locA := model.SimpleLocation("storageA", "/data", "f1.bin")
	locB := model.SimpleLocation("storageB", "/data", "f1.bin")

	reg.AddEntry(file, locA)
	reg.AddEntry(file, locB)

	locs := reg.Lookup("f1", "origin")
	require.Len(t, locs, 2)
	assert.True(t, locs[0].Equal(locA))
	assert.True(t, locs[1].Equal(locB))
}

func TestLookupSortsByProximityWhenProbeRegistered(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("origin"), clk, mbox)
	reg.RegisterServiceHost("near", "hostNear")
	reg.RegisterServiceHost("far", "hostFar")
	reg.RegisterProximityProbe(fixedProbe{
		{"origin", "hostNear"}: 1,
		{"origin", "hostFar"}:  100,
	})

	file := model.File{ID: "f1", SizeBytes: 1024}
	locFar := model.SimpleLocation("far", "/data", "f1.bin")
	locNear := model.SimpleLocation("near", "/data", "f1.bin")

	reg.AddEntry(file, locFar)
	reg.AddEntry(file, locNear)

	locs := reg.Lookup("f1", "origin")
	require.Len(t, locs, 2)
	assert.True(t, locs[0].Equal(locNear), "nearer location should sort first")
	assert.True(t, locs[1].Equal(locFar))
}

func TestLookupPutsUnresolvableServicesLast(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("origin"), clk, mbox)
	reg.RegisterServiceHost("known", "hostKnown")
	reg.RegisterProximityProbe(fixedProbe{
		{"origin", "hostKnown"}: 5,
	})

	file := model.File{ID: "f1", SizeBytes: 1024}
	locUnknown := model.SimpleLocation("unregistered", "/data", "f1.bin")
	locKnown := model.SimpleLocation("known", "/data", "f1.bin")

	reg.AddEntry(file, locUnknown)
	reg.AddEntry(file, locKnown)

	locs := reg.Lookup("f1", "origin")
	require.Len(t, locs, 2)
	assert.True(t, locs[0].Equal(locKnown))
	assert.True(t, locs[1].Equal(locUnknown))
}

func TestLookupCachesDistanceAcrossCalls(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("origin"), clk, mbox)
	reg.RegisterServiceHost("storage1", "hostA")

	calls := 0
	reg.RegisterProximityProbe(countingProbe(func(from, to string) float64 {
		calls++
		return 3
	}))

	locA := model.SimpleLocation("storage1", "/data", "a.bin")
	locB := model.SimpleLocation("storage1", "/data", "b.bin")
	reg.AddEntry(model.File{ID: "f2", SizeBytes: 1}, locA)
	reg.AddEntry(model.File{ID: "f2", SizeBytes: 1}, locB)

	reg.Lookup("f2", "origin")
	reg.Lookup("f2", "origin")

	assert.Equal(t, 1, calls, "the (origin, hostA) pair should be probed once and cached thereafter")
}

type countingProbe func(from, to string) float64

func (f countingProbe) Distance(from, to string) float64 { return f(from, to) }

func TestLifecycleStartStopKill(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	reg := New("reg1", testHost("host1"), clk, mbox)
	clk.Join()
	reg.Start()
	clk.Leave()

	assert.False(t, reg.IsDown())

	clk.Join()
	reg.Kill()
	clk.Leave()

	assert.True(t, reg.IsDown())
}
