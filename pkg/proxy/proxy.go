package proxy

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/memory"
	"github.com/cuemby/simforge/pkg/metrics"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
	"github.com/cuemby/simforge/pkg/storage"
)

// ReadMethod selects how a Proxy serves a cache miss, per spec §4.5.
type ReadMethod int

const (
	// CopyThenRead copies the whole file remote->cache before serving
	// the read from cache.
	CopyThenRead ReadMethod = iota
	// MagicRead admits the file into the cache instantly, in zero
	// simulated time.
	MagicRead
	// ReadThrough streams to the caller directly from the remote while
	// concurrently admitting the bytes into the cache.
	ReadThrough
)

// Proxy fronts a cache storage.Service and one or more remote
// storage.Services. It deliberately has no CreateFile method — see
// doc.go's ambiguity guard.
type Proxy struct {
	Name string

	cache             *storage.Service
	cacheMountpoint   string
	defaultRemote     *storage.Service
	defaultRemoteName string
	remotes           map[string]*storage.Service
	readMethod        ReadMethod
	clock             *clock.Clock
	breakers          map[string]*gobreaker.CircuitBreaker[any]

	// memMgr is the cache disk's page-cache accounting. A nil memMgr
	// disables LRU eviction entirely: admission still succeeds or fails
	// on the cache disk's own FreeBytes, exactly as if the cache had
	// infinite capacity tracking but finite disk space.
	memMgr *memory.Manager
}

// NewProxy builds a proxy over cache (at cacheMountpoint) with the
// given remotes, keyed by name; defaultRemoteName must be a key in
// remotes and is used whenever a caller doesn't name one explicitly.
// memMgr, if non-nil, tracks the cache's LRU state and is consulted to
// evict before every cache admission and updated on every hit, admit,
// and invalidation.
func NewProxy(name string, cache *storage.Service, cacheMountpoint string, remotes map[string]*storage.Service, defaultRemoteName string, method ReadMethod, clk *clock.Clock, memMgr *memory.Manager) (*Proxy, error) {
	def, ok := remotes[defaultRemoteName]
	if !ok {
		return nil, simerr.New(simerr.InvalidArgument, name)
	}
	breakers := make(map[string]*gobreaker.CircuitBreaker[any], len(remotes))
	for remoteName := range remotes {
		breakers[remoteName] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        name + "-proxy-" + remoteName,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return &Proxy{
		Name:              name,
		cache:             cache,
		cacheMountpoint:   cacheMountpoint,
		defaultRemote:     def,
		defaultRemoteName: defaultRemoteName,
		remotes:           remotes,
		readMethod:        method,
		clock:             clk,
		breakers:          breakers,
		memMgr:            memMgr,
	}, nil
}

// viaBreaker runs op through remoteName's circuit breaker, translating
// a tripped breaker into simerr.HostError.
func (p *Proxy) viaBreaker(remoteName string, op func() error) error {
	cb, ok := p.breakers[remoteName]
	if !ok {
		return op()
	}
	_, err := cb.Execute(func() (any, error) { return nil, op() })
	if err == gobreaker.ErrOpenState {
		return simerr.New(simerr.HostError, p.Name)
	}
	return err
}

// Cache exposes the underlying cache service for direct CreateFile
// calls, since Proxy itself doesn't offer one.
func (p *Proxy) Cache() *storage.Service { return p.cache }

// Remote exposes a named underlying remote for direct CreateFile
// calls; the default remote is reachable under defaultRemoteName too.
func (p *Proxy) Remote(name string) *storage.Service { return p.remotes[name] }

func (p *Proxy) remoteFor(loc model.FileLocation) (name string, svc *storage.Service, err error) {
	if !loc.IsProxied() || loc.TargetService == "" {
		return p.defaultRemoteName, p.defaultRemote, nil
	}
	remote, ok := p.remotes[loc.TargetService]
	if !ok {
		return "", nil, simerr.New(simerr.InvalidArgument, p.Name)
	}
	return loc.TargetService, remote, nil
}

func (p *Proxy) cacheLoc(loc model.FileLocation) model.FileLocation {
	return model.SimpleLocation(p.cache.Name, p.cacheMountpoint, loc.Path)
}

// ensureCacheRoom evicts whole files from memMgr's LRU, oldest first,
// until size bytes are free on the cache disk, physically deleting
// each evicted file from the cache. A proxy with no memMgr never
// evicts; admission then succeeds or fails purely on the cache disk's
// own FreeBytes.
func (p *Proxy) ensureCacheRoom(size int64) error {
	if p.memMgr == nil {
		return nil
	}
	free, err := p.cache.FreeBytes(p.cacheMountpoint)
	if err != nil {
		return err
	}
	if free >= size {
		return nil
	}
	for _, fileID := range p.memMgr.EvictFiles(size - free) {
		_ = p.cache.Delete(model.SimpleLocation(p.cache.Name, p.cacheMountpoint, fileID))
	}
	return nil
}

// admitToCache records a fresh cache admission of size bytes for path
// in memMgr, a no-op with no memMgr configured.
func (p *Proxy) admitToCache(path string, size int64) {
	if p.memMgr != nil {
		p.memMgr.ReadToCache(path, size)
	}
}

// touchCacheHit records a cache hit for path in memMgr, promoting it
// in the LRU, a no-op with no memMgr configured.
func (p *Proxy) touchCacheHit(path string) {
	if p.memMgr != nil {
		p.memMgr.ReadFromCache(path)
	}
}

// forgetCache drops path from memMgr's accounting entirely, for a
// write-invalidate or delete, a no-op with no memMgr configured.
func (p *Proxy) forgetCache(path string) {
	if p.memMgr != nil {
		p.memMgr.Forget(path)
	}
}

// Lookup reports whether the file is currently cached. A cache miss is
// not an error — §4.5 determines hit/miss purely from the cache's own
// has(file) predicate.
func (p *Proxy) Lookup(loc model.FileLocation) bool {
	return p.cache.Lookup(p.cacheLoc(loc))
}

// Read serves loc from the cache on a hit, or per the proxy's
// configured ReadMethod on a miss.
func (p *Proxy) Read(callerID string, loc model.FileLocation, numBytes int64) error {
	remoteName, remote, err := p.remoteFor(loc)
	if err != nil {
		return err
	}
	cacheLoc := p.cacheLoc(loc)
	if p.cache.Lookup(cacheLoc) {
		metrics.CacheHitsTotal.WithLabelValues(p.Name).Inc()
		p.touchCacheHit(loc.Path)
		return p.cache.Read(callerID, cacheLoc, numBytes)
	}
	metrics.CacheMissesTotal.WithLabelValues(p.Name).Inc()

	remoteLoc := model.SimpleLocation(remote.Name, loc.Mountpoint, loc.Path)

	switch p.readMethod {
	case MagicRead:
		var file *model.File
		err := p.viaBreaker(remoteName, func() error {
			f, err := remote.FileAt(remoteLoc)
			file = f
			return err
		})
		if err != nil {
			return err
		}
		if err := p.ensureCacheRoom(file.SizeBytes); err != nil {
			return err
		}
		if err := p.cache.CreateFile(cacheLoc, file); err != nil {
			return err
		}
		p.admitToCache(loc.Path, file.SizeBytes)
		return p.cache.Read(callerID, cacheLoc, numBytes)

	case ReadThrough:
		p.clock.Spawn(func() {
			defer p.clock.Leave()
			var admitted int64
			err := p.viaBreaker(remoteName, func() error {
				f, err := remote.FileAt(remoteLoc)
				if err != nil {
					return err
				}
				if err := p.ensureCacheRoom(f.SizeBytes); err != nil {
					return err
				}
				admitted = f.SizeBytes
				return storage.Copy(p.Name+"-admit", remote, p.cache, remoteLoc, cacheLoc)
			})
			if err == nil {
				p.admitToCache(loc.Path, admitted)
			}
		})
		return p.viaBreaker(remoteName, func() error {
			return remote.Read(callerID, remoteLoc, numBytes)
		})

	default: // CopyThenRead
		var file *model.File
		err := p.viaBreaker(remoteName, func() error {
			f, err := remote.FileAt(remoteLoc)
			file = f
			return err
		})
		if err != nil {
			return err
		}
		if err := p.ensureCacheRoom(file.SizeBytes); err != nil {
			return err
		}
		err = p.viaBreaker(remoteName, func() error {
			return storage.Copy(callerID, remote, p.cache, remoteLoc, cacheLoc)
		})
		if err != nil {
			return err
		}
		p.admitToCache(loc.Path, file.SizeBytes)
		return p.cache.Read(callerID, cacheLoc, numBytes)
	}
}

// Write always targets the remote named by loc (default when
// unnamed), and invalidates any stale cache entry for the same path,
// per §4.5's write-invalidate rule.
func (p *Proxy) Write(callerID string, loc model.FileLocation, file *model.File) error {
	remoteName, remote, err := p.remoteFor(loc)
	if err != nil {
		return err
	}
	remoteLoc := model.SimpleLocation(remote.Name, loc.Mountpoint, loc.Path)
	if err := p.viaBreaker(remoteName, func() error { return remote.Write(callerID, remoteLoc, file) }); err != nil {
		return err
	}
	p.forgetCache(loc.Path)
	return p.cache.Delete(p.cacheLoc(loc))
}

// Delete removes loc from its remote and invalidates the cache entry.
func (p *Proxy) Delete(loc model.FileLocation) error {
	remoteName, remote, err := p.remoteFor(loc)
	if err != nil {
		return err
	}
	remoteLoc := model.SimpleLocation(remote.Name, loc.Mountpoint, loc.Path)
	if err := p.viaBreaker(remoteName, func() error { return remote.Delete(remoteLoc) }); err != nil {
		return err
	}
	p.forgetCache(loc.Path)
	return p.cache.Delete(p.cacheLoc(loc))
}
