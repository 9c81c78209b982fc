package registry

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
)

// distanceCacheSize bounds the proximity-estimate memo. A run touches at
// most (hosts x hosts) distinct pairs, which for any simulation this
// core is meant to drive comfortably fits well under this ceiling.
const distanceCacheSize = 4096

// ProximityProbe estimates the network distance between two hosts, as
// reported by a network-proximity service configured into the
// simulation. Smaller is closer.
type ProximityProbe interface {
	Distance(fromHost, toHost string) float64
}

type distanceKey struct {
	from string
	to   string
}

// Registry is the file registry (C12): a process-wide file -> set of
// locations directory with serialised mutation and proximity-sorted
// lookup.
type Registry struct {
	Name string

	clock *clock.Clock
	mbox  *mailbox.System
	log   zerolog.Logger

	svcActor *actor.Actor

	mu      sync.Mutex
	entries map[string][]model.FileLocation // file id -> locations, insertion order

	serviceHosts map[string]string // storage/proxy service name -> hosting host name
	probe        ProximityProbe
	distances    *lru.Cache[distanceKey, float64]
}

// New builds a registry. The returned Registry starts down; call Start
// once the caller holds the clock's turn.
func New(name string, host *model.Host, clk *clock.Clock, mboxSys *mailbox.System) *Registry {
	distances, _ := lru.New[distanceKey, float64](distanceCacheSize)
	return &Registry{
		Name:         name,
		clock:        clk,
		mbox:         mboxSys,
		log:          log.WithComponent("registry." + name),
		svcActor:     actor.New(name, host, name+"_registry_mailbox", clk, mboxSys),
		entries:      make(map[string][]model.FileLocation),
		serviceHosts: make(map[string]string),
		distances:    distances,
	}
}

// Start brings the registry's lifecycle actor up. The caller must
// currently hold the clock's turn.
func (r *Registry) Start() {
	r.svcActor.Start(func(a *actor.Actor) error {
		<-a.Stopping()
		return nil
	})
}

func (r *Registry) Stop() { r.svcActor.Stop() }
func (r *Registry) Kill() { r.svcActor.Kill() }

// IsDown reports whether the registry's actor is currently down.
func (r *Registry) IsDown() bool { return r.svcActor.State() == actor.StateDown }

// RegisterServiceHost records which host a storage or proxy service
// runs on, so Lookup can resolve a location to a host for proximity
// sorting. Locations for services never registered here sort last.
func (r *Registry) RegisterServiceHost(serviceName, hostName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serviceHosts[serviceName] = hostName
}

// RegisterProximityProbe wires a network-proximity service into the
// registry; once set, Lookup sorts by estimated distance from the
// origin host passed to it.
func (r *Registry) RegisterProximityProbe(probe ProximityProbe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probe = probe
}

// AddEntry records that loc holds file. Idempotent: adding a location
// already on file's entry is a no-op, per the same idiom as
// pkg/storage.Service.Delete.
func (r *Registry) AddEntry(file model.File, loc model.FileLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	locs := r.entries[file.ID]
	for _, existing := range locs {
		if existing.Equal(loc) {
			return
		}
	}
	r.entries[file.ID] = append(locs, loc)
}

// RemoveEntry drops loc from fileID's location set, if present.
// Idempotent: removing an absent location is not an error.
func (r *Registry) RemoveEntry(fileID string, loc model.FileLocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	locs := r.entries[fileID]
	for i, existing := range locs {
		if existing.Equal(loc) {
			r.entries[fileID] = append(locs[:i], locs[i+1:]...)
			if len(r.entries[fileID]) == 0 {
				delete(r.entries, fileID)
			}
			return
		}
	}
}

// HasLocation reports whether loc is currently on fileID's entry — the
// registry-side half of the "registry[f] contains s iff s.hasFile(f)"
// property; the storage-side half is each Service's own Lookup.
func (r *Registry) HasLocation(fileID string, loc model.FileLocation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries[fileID] {
		if existing.Equal(loc) {
			return true
		}
	}
	return false
}

// Lookup returns fileID's current location set. When fromHost is
// non-empty and a proximity probe is registered, the result is sorted
// by estimated distance from fromHost, cheapest first, ties (and any
// location whose service host is unknown) broken by location string for
// determinism; otherwise it is returned in insertion order.
func (r *Registry) Lookup(fileID string, fromHost string) []model.FileLocation {
	r.mu.Lock()
	locs := append([]model.FileLocation(nil), r.entries[fileID]...)
	probe := r.probe
	r.mu.Unlock()

	if fromHost == "" || probe == nil || len(locs) < 2 {
		return locs
	}

	type scored struct {
		loc      model.FileLocation
		distance float64
		known    bool
	}
	scoredLocs := make([]scored, len(locs))
	for i, loc := range locs {
		d, known := r.distanceTo(probe, fromHost, loc)
		scoredLocs[i] = scored{loc: loc, distance: d, known: known}
	}
	sort.SliceStable(scoredLocs, func(i, j int) bool {
		a, b := scoredLocs[i], scoredLocs[j]
		if a.known != b.known {
			return a.known // known distances sort ahead of unresolvable ones
		}
		if a.known && a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.loc.String() < b.loc.String()
	})
	out := make([]model.FileLocation, len(scoredLocs))
	for i, s := range scoredLocs {
		out[i] = s.loc
	}
	return out
}

func (r *Registry) distanceTo(probe ProximityProbe, fromHost string, loc model.FileLocation) (float64, bool) {
	r.mu.Lock()
	toHost, ok := r.serviceHosts[loc.StorageService]
	r.mu.Unlock()
	if !ok {
		return 0, false
	}

	key := distanceKey{from: fromHost, to: toHost}
	if d, ok := r.distances.Get(key); ok {
		return d, true
	}
	d := probe.Distance(fromHost, toHost)
	r.distances.Add(key, d)
	return d, true
}
