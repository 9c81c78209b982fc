package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simforge/pkg/proxy"
)

const sampleScenario = `
hosts:
  - name: host1
    cores: 8
    memory_bytes: 17179869184
    flops_per_core: 1000000000
    disks:
      - name: disk1
        mountpoint: /scratch
        capacity_bytes: 1000000000
        read_bandwidth: 500000000
        write_bandwidth: 500000000
  - name: host2
    cores: 4
    memory_bytes: 8589934592
    flops_per_core: 1000000000

links:
  - name: link1
    endpoint_a: host1
    endpoint_b: host2
    bandwidth: 1000000000
    latency_secs: 0.001

cache:
  caching_behavior: LRU
  uncached_read_method: MagicRead
  storage_selection_method: least_loaded

batch_services:
  - name: batch1
    hosts: [host1, host2]
    properties:
      BatchSchedulingAlgorithm: bestfit

jobs:
  - id: job1
    batch_service: batch1
    args:
      "-N": "1"
      "-c": "4"
      "-t": "30"
`

func writeScenario(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesHostsAndDisks(t *testing.T) {
	path := writeScenario(t, sampleScenario)
	s, err := Load(path)
	require.NoError(t, err)

	require.Len(t, s.Hosts, 2)
	host1, ok := s.HostByName("host1")
	require.True(t, ok)
	assert.Equal(t, 8, host1.Cores)
	require.Len(t, host1.Disks, 1)
	assert.Equal(t, "/scratch", host1.Disks[0].Mountpoint)

	_, ok = s.HostByName("nope")
	assert.False(t, ok)
}

func TestLoadParsesCacheConfig(t *testing.T) {
	path := writeScenario(t, sampleScenario)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CachingLRU, s.Cache.CachingBehavior)
	assert.Equal(t, ReadMagicRead, s.Cache.UncachedReadMethod)
	assert.Equal(t, SelectionLeastLoaded, s.Cache.StorageSelectionMethod)
}

func TestLoadParsesBatchServicesAndJobs(t *testing.T) {
	path := writeScenario(t, sampleScenario)
	s, err := Load(path)
	require.NoError(t, err)

	require.Len(t, s.BatchServices, 1)
	assert.Equal(t, "bestfit", s.BatchServices[0].PlacementPolicy())
	assert.Equal(t, []string{"host1", "host2"}, s.BatchServices[0].Hosts)

	require.Len(t, s.Jobs, 1)
	assert.Equal(t, "batch1", s.Jobs[0].BatchService)
	assert.Equal(t, "4", s.Jobs[0].Args["-c"])
}

func TestBatchServiceSpecPlacementPolicyDefaultsToFCFS(t *testing.T) {
	b := BatchServiceSpec{Name: "b"}
	assert.Equal(t, "fcfs", b.PlacementPolicy())
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestUncachedReadMethodResolvesToProxyEnum(t *testing.T) {
	m, err := ReadCopyThenRead.ToProxyReadMethod()
	require.NoError(t, err)
	assert.Equal(t, proxy.CopyThenRead, m)

	m, err = ReadMagicRead.ToProxyReadMethod()
	require.NoError(t, err)
	assert.Equal(t, proxy.MagicRead, m)

	m, err = ReadThrough.ToProxyReadMethod()
	require.NoError(t, err)
	assert.Equal(t, proxy.ReadThrough, m)

	_, err = UncachedReadMethod("bogus").ToProxyReadMethod()
	assert.Error(t, err)
}

func TestUncachedReadMethodDefaultsToCopyThenRead(t *testing.T) {
	m, err := UncachedReadMethod("").ToProxyReadMethod()
	require.NoError(t, err)
	assert.Equal(t, proxy.CopyThenRead, m)
}

func TestStorageSelectionMethodResolvesToProxyEnum(t *testing.T) {
	m, err := SelectionExternal.ToProxySelectionMethod()
	require.NoError(t, err)
	assert.Equal(t, proxy.External, m)

	m, err = SelectionLeastLoaded.ToProxySelectionMethod()
	require.NoError(t, err)
	assert.Equal(t, proxy.LeastLoaded, m)

	_, err = StorageSelectionMethod("bogus").ToProxySelectionMethod()
	assert.Error(t, err)
}
