/*
Package proxy implements the proxy/cache storage service (C7): a
front-end that fronts one cache storage.Service and one or more remote
storage.Services (one of them default), presenting the same
lookup/read/write/delete surface §4.4 gives a plain storage service.

Read misses are served per a configured ReadMethod, each admission
first consulting the proxy's pkg/memory.Manager (if configured) and
evicting as needed, oldest file first, to make room on the cache disk:

  - CopyThenRead copies the whole file remote -> cache (via
    pkg/storage.Copy, reserving cache space) before serving the read
    from cache — every subsequent read of the same file is a hit.
  - MagicRead admits the file into the cache in zero simulated time
    (storage.Service.CreateFile, no transfer) — a perfect-prefetch
    knob for experiments that want cache effects without paying for
    them.
  - ReadThrough streams the read straight from the remote to the
    caller while a concurrent, un-awaited copy admits the same bytes
    into the cache in the background.

A cache hit re-accesses the file in the memory manager's LRU; a write
or delete forgets it there outright, matching the cache disk's own
invalidation.

Writes always go to the named remote (default, or explicit via
model.ProxyLocation/TargetService) and invalidate any stale cache
entry for that path, per §4.5's write-invalidate rule.

The ambiguity guard from spec §4.5 and the worked example in
examples/action_api/storage-service-proxy/Controller.cpp (original
source) is structural, not a runtime check: Proxy has no CreateFile
method at all. A caller must go through Cache() or Remote(name) to
create a file directly on one of the underlying services — the
original's own commented-out line ("proxy->createFile(cachedFile) //
What this line should do is ambiguous and not supported") is exactly
the call this package makes impossible to write.

Federation, in the same package, generalizes the single-cache proxy
into a thin front across several cache-like children, selected per
request by one of three methods mirroring
CompoundStorageService.h's selection-policy idea narrowed to the
config keys spec §6 actually names: round_robin (simple rotation),
least_loaded (most free bytes), and external (a stable hash of the
file ID, via OneOfOne/xxhash, so the same file always lands on the
same child without any shared state).
*/
package proxy
