package memory

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/metrics"
	"github.com/cuemby/simforge/pkg/model"
)

// Manager is a per-host page cache: two LRU lists (active, inactive),
// each holding clean and dirty model.Block entries, plus the periodic
// flush (pdflush) daemon described in doc.go.
type Manager struct {
	Host *model.Host

	name          string // metrics/actor label, "pdflush_<host>"
	capacityBytes int64
	dirtyRatio    float64
	interval      float64 // seconds between pdflush runs
	expiredTime   float64 // seconds a dirty block may sit unflushed

	disk  *model.Disk // backing disk charged for flush-write delays
	clock *clock.Clock
	log   zerolog.Logger

	svcActor *actor.Actor

	mu       sync.Mutex
	free     int64
	cached   int64
	dirty    int64
	active   []*model.Block
	inactive []*model.Block
}

// NewManager builds a page cache of capacityBytes over disk, on host.
// interval and expiredTime are in simulated seconds, matching
// MemoryManager's constructor (which takes them in the same unit,
// despite one doc comment upstream claiming milliseconds).
func NewManager(host *model.Host, disk *model.Disk, capacityBytes int64, dirtyRatio, interval, expiredTime float64, clk *clock.Clock, mboxSys *mailbox.System) *Manager {
	name := "pdflush_" + host.Name
	m := &Manager{
		Host:          host,
		name:          name,
		capacityBytes: capacityBytes,
		dirtyRatio:    dirtyRatio,
		interval:      interval,
		expiredTime:   expiredTime,
		disk:          disk,
		clock:         clk,
		log:           log.WithComponent(name),
		svcActor:      actor.New(name, host, name+"_mailbox", clk, mboxSys),
		free:          capacityBytes,
	}
	m.reportCacheBytesLocked()
	return m
}

// reportCacheBytesLocked publishes the manager's current free/cached/
// dirty byte counts to simforge_cache_bytes. Call with m.mu held, or
// (as in NewManager) before the Manager escapes to another goroutine.
func (m *Manager) reportCacheBytesLocked() {
	metrics.CacheBytes.WithLabelValues(m.name, "free").Set(float64(m.free))
	metrics.CacheBytes.WithLabelValues(m.name, "cached").Set(float64(m.cached))
	metrics.CacheBytes.WithLabelValues(m.name, "dirty").Set(float64(m.dirty))
}

// Start brings the manager's pdflush loop up. The caller must currently
// hold the clock's turn.
func (m *Manager) Start() {
	m.svcActor.Start(func(a *actor.Actor) error {
		for {
			select {
			case <-a.Stopping():
				return nil
			default:
			}
			start := a.Now()
			m.pdflush()
			elapsed := a.Now() - start
			if elapsed < m.interval {
				a.Sleep(m.interval - elapsed)
			}
		}
	})
}

func (m *Manager) Stop() { m.svcActor.Stop() }
func (m *Manager) Kill() { m.svcActor.Kill() }

func (m *Manager) Free() int64   { m.mu.Lock(); defer m.mu.Unlock(); return m.free }
func (m *Manager) Cached() int64 { m.mu.Lock(); defer m.mu.Unlock(); return m.cached }
func (m *Manager) Dirty() int64  { m.mu.Lock(); defer m.mu.Unlock(); return m.dirty }

// Evictable reports the total size of inactive, clean blocks.
func (m *Manager) Evictable() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, blk := range m.inactive {
		if !blk.Dirty {
			sum += blk.Size
		}
	}
	return sum
}

// ReadToCache admits amount fresh bytes of fileID as a clean block in
// inactive, ported from MemoryManager::readToCache.
func (m *Manager) ReadToCache(fileID string, amount int64) {
	m.mu.Lock()
	m.free -= amount
	m.cached += amount
	m.inactive = append(m.inactive, &model.Block{FileID: fileID, Size: amount, LastAccess: m.clock.Now(), Dirty: false})
	m.balanceAndSortCacheLocked()
	m.reportCacheBytesLocked()
	m.mu.Unlock()
}

// ReadFromCache re-accesses every block belonging to fileID, merging
// them into one clean and (if any were dirty) one dirty block in
// active, with a fresh LastAccess, then rebalances the two lists, which
// can move part of those bytes back into inactive. Returns the total
// bytes re-accessed.
func (m *Manager) ReadFromCache(fileID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dirtyReaccessed, cleanReaccessed int64
	m.inactive, dirtyReaccessed, cleanReaccessed = extractFile(m.inactive, fileID)
	var d2, c2 int64
	m.active, d2, c2 = extractFile(m.active, fileID)
	dirtyReaccessed += d2
	cleanReaccessed += c2

	now := m.clock.Now()
	if cleanReaccessed > 0 {
		m.active = append(m.active, &model.Block{FileID: fileID, Size: cleanReaccessed, LastAccess: now, Dirty: false})
	}
	if dirtyReaccessed > 0 {
		m.active = append(m.active, &model.Block{FileID: fileID, Size: dirtyReaccessed, LastAccess: now, Dirty: true})
	}

	m.balanceAndSortCacheLocked()
	return dirtyReaccessed + cleanReaccessed
}

// extractFile removes every block for fileID from list, returning the
// remaining list and the total dirty/clean bytes removed.
func extractFile(list []*model.Block, fileID string) (remaining []*model.Block, dirty, clean int64) {
	remaining = list[:0:0]
	for _, blk := range list {
		if blk.FileID != fileID {
			remaining = append(remaining, blk)
			continue
		}
		if blk.Dirty {
			dirty += blk.Size
		} else {
			clean += blk.Size
		}
	}
	return remaining, dirty, clean
}

// WriteToCache appends a dirty block of amount bytes for fileID to
// inactive, ported from MemoryManager::writeToCache.
func (m *Manager) WriteToCache(fileID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inactive = append(m.inactive, &model.Block{FileID: fileID, Size: amount, LastAccess: m.clock.Now(), Dirty: true})
	m.cached -= amount
	m.free -= amount
	m.dirty += amount
	m.reportCacheBytesLocked()
}

// Flush clears up to amount bytes of dirty data, inactive first then
// active, and charges the caller a disk-write delay for what it
// actually flushed.
func (m *Manager) Flush(amount int64) int64 {
	m.mu.Lock()
	flushedInactive := m.flushLRUListLocked(m.inactive, amount)
	var flushedActive int64
	if flushedInactive < amount {
		flushedActive = m.flushLRUListLocked(m.active, amount-flushedInactive)
	}
	total := flushedInactive + flushedActive
	m.reportCacheBytesLocked()
	m.mu.Unlock()

	m.clock.Sleep(writeDuration(total, m.disk))
	return total
}

// pdflush flushes any dirty block whose LastAccess is older than
// expiredTime, across both lists, ported from MemoryManager::pdflush.
func (m *Manager) pdflush() int64 {
	m.mu.Lock()
	flushed := m.flushExpiredLocked(m.inactive) + m.flushExpiredLocked(m.active)
	m.reportCacheBytesLocked()
	m.mu.Unlock()

	if flushed > 0 {
		m.clock.Sleep(writeDuration(flushed, m.disk))
	}
	return flushed
}

// Evict removes up to amount bytes of clean data from inactive, in LRU
// order, splitting a partially-evicted head block. Per §4.6's explicit
// statement (see doc.go for the original's contradictory evict()).
func (m *Manager) Evict(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted int64
	kept := m.inactive[:0:0]
	for i, blk := range m.inactive {
		if blk.Dirty {
			kept = append(kept, blk)
			continue
		}
		switch {
		case evicted+blk.Size <= amount:
			evicted += blk.Size
		case evicted < amount && amount < evicted+blk.Size:
			remainder := evicted + blk.Size - amount
			evicted = amount
			kept = append(kept, &model.Block{FileID: blk.FileID, Size: remainder, LastAccess: blk.LastAccess, Dirty: false})
		default:
			kept = append(kept, blk)
		}
		if evicted >= amount {
			kept = append(kept, m.inactive[i+1:]...)
			break
		}
	}
	m.inactive = kept

	m.cached -= evicted
	m.free += evicted
	if evicted > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues(m.name).Inc()
	}
	m.reportCacheBytesLocked()
	return evicted
}

// EvictFiles evicts whole clean files from inactive, oldest
// LastAccess first, until at least amount bytes have been freed or no
// clean file remains, and returns the evicted file IDs. Proxy uses
// this (rather than the byte-granular Evict) so it knows exactly
// which files to also drop from the backing cache store.
func (m *Manager) EvictFiles(amount int64) []string {
	if amount <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var evictedIDs []string
	var evicted int64
	kept := m.inactive[:0:0]
	for _, blk := range m.inactive {
		if evicted >= amount || blk.Dirty {
			kept = append(kept, blk)
			continue
		}
		evicted += blk.Size
		evictedIDs = append(evictedIDs, blk.FileID)
	}
	m.inactive = kept

	m.cached -= evicted
	m.free += evicted
	if evicted > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues(m.name).Inc()
	}
	m.reportCacheBytesLocked()
	return evictedIDs
}

// Forget drops every block belonging to fileID from both lists
// without charging a flush delay, for a hit explicitly invalidated
// outside the LRU's own judgment (a proxy write-invalidate, or a
// physical delete following EvictFiles). Returns the bytes freed.
func (m *Manager) Forget(fileID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var dirty1, clean1, dirty2, clean2 int64
	m.inactive, dirty1, clean1 = extractFile(m.inactive, fileID)
	m.active, dirty2, clean2 = extractFile(m.active, fileID)
	clean := clean1 + clean2
	dirty := dirty1 + dirty2

	m.cached -= clean
	m.dirty -= dirty
	m.free += clean + dirty
	m.reportCacheBytesLocked()
	return clean + dirty
}

// GetCachedData reports the total bytes currently cached for fileID
// across both lists.
func (m *Manager) GetCachedData(fileID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var amt int64
	for _, blk := range m.inactive {
		if blk.FileID == fileID {
			amt += blk.Size
		}
	}
	for _, blk := range m.active {
		if blk.FileID == fileID {
			amt += blk.Size
		}
	}
	return amt
}

// flushLRUListLocked clears dirty blocks in list up to amount, in
// order, splitting a partial head block. The split's clean remainder
// always lands in inactive, per the original's (surprising but
// faithfully ported) hardcoded destination.
func (m *Manager) flushLRUListLocked(list []*model.Block, amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	var flushed int64
	for _, blk := range list {
		if !blk.Dirty {
			continue
		}
		if flushed+blk.Size <= amount {
			blk.Dirty = false
			flushed += blk.Size
			continue
		}
		if flushed < amount {
			blkFlushed := amount - flushed
			flushed = amount
			blk.Size -= blkFlushed
			m.inactive = append(m.inactive, &model.Block{FileID: blk.FileID, Size: blkFlushed, LastAccess: blk.LastAccess, Dirty: false})
		}
		break
	}
	m.dirty -= flushed
	return flushed
}

// flushExpiredLocked flushes every dirty block in list whose LastAccess
// is at least expiredTime seconds old.
func (m *Manager) flushExpiredLocked(list []*model.Block) int64 {
	var flushed int64
	now := m.clock.Now()
	for _, blk := range list {
		if !blk.Dirty {
			continue
		}
		if now-blk.LastAccess >= m.expiredTime {
			blk.Dirty = false
			flushed += blk.Size
		}
	}
	m.dirty -= flushed
	return flushed
}

// balanceAndSortCacheLocked rebalances active/inactive, then keeps both
// sorted by LastAccess ascending.
func (m *Manager) balanceAndSortCacheLocked() {
	m.balanceLRULocked()
	// SliceStable, not Slice: entries with an equal LastAccess (common
	// when several blocks are admitted in the same virtual instant) must
	// keep arrival order, or LRU eviction order becomes nondeterministic.
	sort.SliceStable(m.active, func(i, j int) bool { return m.active[i].LastAccess < m.active[j].LastAccess })
	sort.SliceStable(m.inactive, func(i, j int) bool { return m.inactive[i].LastAccess < m.inactive[j].LastAccess })
}

// balanceLRULocked moves the oldest half of active's excess into
// inactive once active exceeds twice inactive's size, ported from
// MemoryManager::balanceLruLists.
func (m *Manager) balanceLRULocked() {
	var activeSize, inactiveSize int64
	for _, blk := range m.active {
		activeSize += blk.Size
	}
	for _, blk := range m.inactive {
		inactiveSize += blk.Size
	}
	if activeSize <= 2*inactiveSize {
		return
	}

	toMove := (activeSize - inactiveSize) / 2
	var moved int64
	kept := m.active[:0:0]
	for i, blk := range m.active {
		if moved >= toMove {
			kept = append(kept, blk)
			continue
		}
		if toMove-(moved+blk.Size) >= 0 {
			m.inactive = append(m.inactive, blk)
			moved += blk.Size
			continue
		}
		remainder := toMove - moved
		m.inactive = append(m.inactive, &model.Block{FileID: blk.FileID, Size: remainder, LastAccess: blk.LastAccess, Dirty: blk.Dirty})
		blk.Size -= remainder
		kept = append(kept, blk)
		moved = toMove
		kept = append(kept, m.active[i+1:]...)
		break
	}
	m.active = kept
}

func writeDuration(amount int64, disk *model.Disk) float64 {
	if disk == nil || disk.WriteBandwidth <= 0 {
		return 0
	}
	return float64(amount) / disk.WriteBandwidth
}
