package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/registry"
	"github.com/cuemby/simforge/pkg/simerr"
)

func testHost(name string, capacity int64, readBW, writeBW float64) *model.Host {
	disk := &model.Disk{Name: "disk0", Mountpoint: "/", CapacityBytes: capacity, ReadBandwidth: readBW, WriteBandwidth: writeBW}
	return &model.Host{Name: name, Cores: 4, Disks: []*model.Disk{disk}}
}

func TestLookupCreateAndDelete(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	svc := NewService("storage1", testHost("host1", 100, 100, 100), clk, mbox)
	loc := model.SimpleLocation("storage1", "/", "f1")
	file := &model.File{ID: "f1", SizeBytes: 10}

	clk.Join()
	svc.Start()

	assert.False(t, svc.Lookup(loc))
	require.NoError(t, svc.CreateFile(loc, file))
	assert.True(t, svc.Lookup(loc))

	free, err := svc.FreeBytes("/")
	require.NoError(t, err)
	assert.Equal(t, int64(90), free)

	require.NoError(t, svc.Delete(loc))
	assert.False(t, svc.Lookup(loc))

	free, err = svc.FreeBytes("/")
	require.NoError(t, err)
	assert.Equal(t, int64(100), free)

	clk.Leave()
}

func TestCreateFileRejectsWhenNotEnoughSpace(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	svc := NewService("storage1", testHost("host1", 10, 100, 100), clk, mbox)
	clk.Join()
	svc.Start()

	loc := model.SimpleLocation("storage1", "/", "big")
	err := svc.CreateFile(loc, &model.File{ID: "big", SizeBytes: 20})
	require.Error(t, err)
	assert.True(t, simerr.Is(err, simerr.NotEnoughSpace))

	clk.Leave()
}

// TestWriteThenReadRoundTrip exercises §8's round-trip property: write
// then read of the same file completes and the clock advances by
// exactly the two transfers' durations (20 bytes / 5 B/s write, then
// 20 bytes / 10 B/s read).
func TestWriteThenReadRoundTrip(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	svc := NewService("storage1", testHost("host1", 100, 10, 5), clk, mbox)
	loc := model.SimpleLocation("storage1", "/", "f1")
	file := &model.File{ID: "f1", SizeBytes: 20}

	var wg sync.WaitGroup
	wg.Add(1)
	var writeErr, readErr error

	clk.Join()
	svc.Start()
	clk.Spawn(func() {
		defer wg.Done()
		writeErr = svc.Write("client", loc, file)
		readErr = svc.Read("client", loc, 0)
		clk.Leave()
	})
	clk.Leave()

	wg.Wait()
	require.NoError(t, writeErr)
	require.NoError(t, readErr)
	assert.Equal(t, 6.0, clk.Now())
	assert.True(t, svc.Lookup(loc))
}

func TestReadMissingFileFails(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	svc := NewService("storage1", testHost("host1", 100, 10, 10), clk, mbox)

	var wg sync.WaitGroup
	wg.Add(1)
	var readErr error

	clk.Join()
	svc.Start()
	clk.Spawn(func() {
		defer wg.Done()
		readErr = svc.Read("client", model.SimpleLocation("storage1", "/", "missing"), 0)
		clk.Leave()
	})
	clk.Leave()

	wg.Wait()
	require.Error(t, readErr)
	assert.True(t, simerr.Is(readErr, simerr.FileNotFound))
}

// TestKillDuringWriteFailsAndReleasesReservation exercises §5's
// cancellation-propagation rule: a kill mid-transfer must fail the
// caller with ServiceIsDown and release the write's space reservation.
func TestKillDuringWriteFailsAndReleasesReservation(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	// writeBW=1 B/s makes a 50-byte write take 50s, long enough for the
	// killer (which wakes at t=1) to land first.
	svc := NewService("storage1", testHost("host1", 100, 10, 1), clk, mbox)
	loc := model.SimpleLocation("storage1", "/", "f1")
	file := &model.File{ID: "f1", SizeBytes: 50}

	var wg sync.WaitGroup
	wg.Add(2)
	var writeErr error

	clk.Join()
	svc.Start()
	clk.Spawn(func() {
		defer wg.Done()
		writeErr = svc.Write("client", loc, file)
		clk.Leave()
	})
	clk.Spawn(func() {
		defer wg.Done()
		clk.Sleep(1)
		svc.Kill()
		clk.Leave()
	})
	clk.Leave()

	wg.Wait()
	require.Error(t, writeErr)
	assert.True(t, simerr.Is(writeErr, simerr.ServiceIsDown))
	assert.Equal(t, 1.0, clk.Now())

	free, err := svc.FreeBytes("/")
	require.NoError(t, err)
	assert.Equal(t, int64(100), free)
}

// TestCopyAcrossServicesSameSimulation covers the cross-service copy
// path: a single transfer thread moves the file from src to dst without
// the caller seeing two separate operations.
func TestCopyAcrossServicesSameSimulation(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	src := NewService("storage-src", testHost("host1", 100, 10, 10), clk, mbox)
	dst := NewService("storage-dst", testHost("host2", 100, 10, 10), clk, mbox)

	srcLoc := model.SimpleLocation("storage-src", "/", "f1")
	dstLoc := model.SimpleLocation("storage-dst", "/", "f1")
	file := &model.File{ID: "f1", SizeBytes: 30}

	var wg sync.WaitGroup
	wg.Add(1)
	var copyErr error

	clk.Join()
	src.Start()
	dst.Start()
	require.NoError(t, src.CreateFile(srcLoc, file))

	clk.Spawn(func() {
		defer wg.Done()
		copyErr = Copy("client", src, dst, srcLoc, dstLoc)
		clk.Leave()
	})
	clk.Leave()

	wg.Wait()
	require.NoError(t, copyErr)
	assert.True(t, dst.Lookup(dstLoc))
	assert.True(t, src.Lookup(srcLoc))
}

func TestCopyLocalWithinSameService(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	svc := NewService("storage1", testHost("host1", 100, 10, 10), clk, mbox)
	srcLoc := model.SimpleLocation("storage1", "/", "f1")
	dstLoc := model.SimpleLocation("storage1", "/", "f1-copy")
	file := &model.File{ID: "f1", SizeBytes: 10}

	var wg sync.WaitGroup
	wg.Add(1)
	var copyErr error

	clk.Join()
	svc.Start()
	require.NoError(t, svc.CreateFile(srcLoc, file))

	clk.Spawn(func() {
		defer wg.Done()
		copyErr = Copy("client", svc, svc, srcLoc, dstLoc)
		clk.Leave()
	})
	clk.Leave()

	wg.Wait()
	require.NoError(t, copyErr)
	assert.True(t, svc.Lookup(dstLoc))
}

func TestRegistryStaysInSyncWithFileMutations(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	host := testHost("host1", 100, 10, 10)
	reg := registry.New("registry", host, clk, mbox)

	src := NewService("src", host, clk, mbox)
	dst := NewService("dst", host, clk, mbox)
	src.SetRegistry(reg)
	dst.SetRegistry(reg)

	srcLoc := model.SimpleLocation("src", "/", "f1")
	dstLoc := model.SimpleLocation("dst", "/", "f1")
	file := &model.File{ID: "f1", SizeBytes: 10}

	clk.Join()
	src.Start()
	dst.Start()

	require.NoError(t, src.CreateFile(srcLoc, file))
	assert.True(t, reg.HasLocation("f1", srcLoc))

	var wg sync.WaitGroup
	wg.Add(1)
	var copyErr error
	clk.Spawn(func() {
		defer wg.Done()
		copyErr = Copy("client", src, dst, srcLoc, dstLoc)
		clk.Leave()
	})
	clk.Leave()
	wg.Wait()
	require.NoError(t, copyErr)
	assert.True(t, reg.HasLocation("f1", dstLoc))

	require.NoError(t, src.Delete(srcLoc))
	assert.False(t, reg.HasLocation("f1", srcLoc))
	assert.True(t, reg.HasLocation("f1", dstLoc))

	require.NoError(t, dst.Delete(dstLoc))
	assert.False(t, reg.HasLocation("f1", dstLoc))
}
