package config

import (
	"github.com/spf13/viper"

	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/proxy"
	"github.com/cuemby/simforge/pkg/simerr"
)

// DiskSpec is one disk attached to a HostSpec in a scenario document.
type DiskSpec struct {
	Name           string  `mapstructure:"name"`
	Mountpoint     string  `mapstructure:"mountpoint"`
	CapacityBytes  int64   `mapstructure:"capacity_bytes"`
	ReadBandwidth  float64 `mapstructure:"read_bandwidth"`
	WriteBandwidth float64 `mapstructure:"write_bandwidth"`
}

// HostSpec is one candidate host in a scenario document.
type HostSpec struct {
	Name         string     `mapstructure:"name"`
	Cores        int        `mapstructure:"cores"`
	MemoryBytes  int64      `mapstructure:"memory_bytes"`
	FlopsPerCore float64    `mapstructure:"flops_per_core"`
	Disks        []DiskSpec `mapstructure:"disks"`
}

// ToModel builds the live *model.Host this spec describes.
func (h HostSpec) ToModel() *model.Host {
	disks := make([]*model.Disk, 0, len(h.Disks))
	for _, d := range h.Disks {
		disks = append(disks, &model.Disk{
			Name:           d.Name,
			Mountpoint:     d.Mountpoint,
			CapacityBytes:  d.CapacityBytes,
			ReadBandwidth:  d.ReadBandwidth,
			WriteBandwidth: d.WriteBandwidth,
		})
	}
	return &model.Host{
		Name:         h.Name,
		Cores:        h.Cores,
		MemoryBytes:  h.MemoryBytes,
		FlopsPerCore: h.FlopsPerCore,
		Disks:        disks,
	}
}

// LinkSpec names a network link's endpoints and its physics-engine
// bandwidth/latency, per spec §6's platform description. The core
// never reads these fields itself (spec §5: link sharing is the
// external physics engine's job) — they're carried through so a
// scenario document stays a complete platform description, and so a
// ProximityProbe implementation has somewhere to source distances
// from instead of inventing them.
type LinkSpec struct {
	Name        string  `mapstructure:"name"`
	EndpointA   string  `mapstructure:"endpoint_a"`
	EndpointB   string  `mapstructure:"endpoint_b"`
	Bandwidth   float64 `mapstructure:"bandwidth"`
	LatencySecs float64 `mapstructure:"latency_secs"`
}

// BatchServiceSpec describes one batch compute service over a named
// subset of the scenario's hosts, plus the HTCondorComputeService-
// style property map spec §4.8/SPEC_FULL §4 generalizes placement
// knobs into.
type BatchServiceSpec struct {
	Name       string            `mapstructure:"name"`
	Hosts      []string          `mapstructure:"hosts"`
	Properties map[string]string `mapstructure:"properties"`
}

// PlacementPolicy reads the "BatchSchedulingAlgorithm" property,
// defaulting to "fcfs" when unset, matching batch.FCFS's own default.
func (b BatchServiceSpec) PlacementPolicy() string {
	if v, ok := b.Properties["BatchSchedulingAlgorithm"]; ok {
		return v
	}
	return "fcfs"
}

// StorageServiceSpec describes one storage.Service instance: the
// host it runs on (its name becomes the service's actor host).
type StorageServiceSpec struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
}

// ProxySpec describes one proxy.Proxy: its cache storage service, the
// mountpoint it caches at, its named remotes, and (when
// CacheConfig.CachingBehavior is LRU) the pkg/memory.Manager that
// tracks that cache's LRU state. Zero-valued memory fields fall back
// to the defaults applied in cmd/simforge.
type ProxySpec struct {
	Name            string            `mapstructure:"name"`
	Cache           string            `mapstructure:"cache"`
	CacheMountpoint string            `mapstructure:"cache_mountpoint"`
	Remotes         map[string]string `mapstructure:"remotes"`
	DefaultRemote   string            `mapstructure:"default_remote"`

	MemoryCapacityBytes  int64   `mapstructure:"memory_capacity_bytes"`
	DirtyRatio           float64 `mapstructure:"dirty_ratio"`
	FlushIntervalSeconds float64 `mapstructure:"flush_interval_seconds"`
	ExpiredTimeSeconds   float64 `mapstructure:"expired_time_seconds"`
}

// Defaults for a ProxySpec's memory-manager knobs when left unset.
const (
	DefaultDirtyRatio           = 0.2
	DefaultFlushIntervalSeconds = 30
	DefaultExpiredTimeSeconds   = 30
)

// ActionSpec is one node of a JobSpec's action DAG, generalizing the
// worked example from job.doc.go
// (examples/action_api/storage-service-proxy/Controller.cpp:
// read -> compute -> write) into data a scenario document can describe
// directly instead of hand-wiring in Go.
type ActionSpec struct {
	Name    string   `mapstructure:"name"`
	Type    string   `mapstructure:"type"` // "compute", "read", or "write"
	Parents []string `mapstructure:"parents"`

	// Type == "compute"
	Flops float64 `mapstructure:"flops"`

	// Type == "read" or "write"
	Service    string `mapstructure:"service"` // storage or proxy service name
	Mountpoint string `mapstructure:"mountpoint"`
	Path       string `mapstructure:"path"`
	FileID     string `mapstructure:"file_id"`
	Bytes      int64  `mapstructure:"bytes"`
}

// JobSpec is one batch submission a scenario wants made once the
// simulation starts, naming the target batch service, its
// SubmissionArgs (spec §6's -N/-c/-t keys), and the action DAG the
// submitted CompoundJob should run.
type JobSpec struct {
	ID           string            `mapstructure:"id"`
	BatchService string            `mapstructure:"batch_service"`
	Args         map[string]string `mapstructure:"args"`
	Overrides    map[string]string `mapstructure:"overrides"`
	Tolerant     bool              `mapstructure:"tolerant"`
	Actions      []ActionSpec      `mapstructure:"actions"`
}

// CachingBehavior selects whether a proxy/cache layer participates at
// all, per spec §6's CACHING_BEHAVIOR key.
type CachingBehavior string

const (
	CachingLRU  CachingBehavior = "LRU"
	CachingNone CachingBehavior = "NONE"
)

// UncachedReadMethod selects how a Proxy serves a cache miss, per
// spec §6's UNCACHED_READ_METHOD key.
type UncachedReadMethod string

const (
	ReadCopyThenRead UncachedReadMethod = "CopyThenRead"
	ReadMagicRead    UncachedReadMethod = "MagicRead"
	ReadThrough      UncachedReadMethod = "ReadThrough"
)

// ToProxyReadMethod resolves the config-level enum to pkg/proxy's
// typed ReadMethod, defaulting to CopyThenRead when unset.
func (m UncachedReadMethod) ToProxyReadMethod() (proxy.ReadMethod, error) {
	switch m {
	case "", ReadCopyThenRead:
		return proxy.CopyThenRead, nil
	case ReadMagicRead:
		return proxy.MagicRead, nil
	case ReadThrough:
		return proxy.ReadThrough, nil
	default:
		return 0, simerr.New(simerr.InvalidArgument, "config")
	}
}

// StorageSelectionMethod picks how a proxy.Federation routes a file
// to one of its children, per spec §6's STORAGE_SELECTION_METHOD key.
type StorageSelectionMethod string

const (
	SelectionExternal    StorageSelectionMethod = "external"
	SelectionRoundRobin  StorageSelectionMethod = "round_robin"
	SelectionLeastLoaded StorageSelectionMethod = "least_loaded"
)

// ToProxySelectionMethod resolves the config-level enum to pkg/proxy's
// typed SelectionMethod, defaulting to RoundRobin when unset.
func (m StorageSelectionMethod) ToProxySelectionMethod() (proxy.SelectionMethod, error) {
	switch m {
	case "", SelectionRoundRobin:
		return proxy.RoundRobin, nil
	case SelectionLeastLoaded:
		return proxy.LeastLoaded, nil
	case SelectionExternal:
		return proxy.External, nil
	default:
		return 0, simerr.New(simerr.InvalidArgument, "config")
	}
}

// CacheConfig holds spec §6's three cache/proxy config keys.
type CacheConfig struct {
	CachingBehavior        CachingBehavior        `mapstructure:"caching_behavior"`
	UncachedReadMethod     UncachedReadMethod     `mapstructure:"uncached_read_method"`
	StorageSelectionMethod StorageSelectionMethod `mapstructure:"storage_selection_method"`
}

// Scenario is a complete simulation input document: the platform's
// hosts/disks/links, the services that run over them, the cache/proxy
// behavior, and the jobs to submit once the simulation starts.
type Scenario struct {
	Hosts           []HostSpec           `mapstructure:"hosts"`
	Links           []LinkSpec           `mapstructure:"links"`
	StorageServices []StorageServiceSpec `mapstructure:"storage_services"`
	Proxies         []ProxySpec          `mapstructure:"proxies"`
	BatchServices   []BatchServiceSpec   `mapstructure:"batch_services"`
	Cache           CacheConfig          `mapstructure:"cache"`
	Jobs            []JobSpec            `mapstructure:"jobs"`
}

// HostByName finds a host spec by name, if present.
func (s Scenario) HostByName(name string) (HostSpec, bool) {
	for _, h := range s.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return HostSpec{}, false
}

// Load reads a scenario document from path (YAML) via viper.
func Load(path string) (Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Scenario{}, simerr.Wrap(simerr.InvalidArgument, "config", err)
	}
	var s Scenario
	if err := v.Unmarshal(&s); err != nil {
		return Scenario{}, simerr.Wrap(simerr.InvalidArgument, "config", err)
	}
	return s, nil
}
