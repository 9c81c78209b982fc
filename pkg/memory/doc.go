/*
Package memory implements the per-host page cache (C8): two LRU lists,
active and inactive, tracking clean and dirty blocks exactly the way the
Linux kernel's page cache does, ported method-for-method from
MemoryManager.cpp.

Manager runs as a pkg/actor.Actor so it has its own periodic flush loop
(pdflush), mirroring MemoryManager::main()'s "flush, then sleep the
remainder of interval" cycle. ReadToCache/ReadFromCache/WriteToCache are
plain synchronous calls a storage service (or test) makes directly
against the Manager; Flush and Evict likewise, except Flush also charges
the caller a disk-write delay via clock.Sleep, since committing dirty
pages to disk takes simulated time.

Blocks are model.Block values; balanceAndSortCache keeps both lists
sorted by LastAccess ascending and, when active has grown past twice
inactive's size, moves the oldest half of the excess into inactive —
ported from balanceLruLists.

One deliberate deviation from the original: MemoryManager::evict only
ever touches blocks where isDirty() is true, which contradicts both its
own name and the flush/evict split implied by the rest of the class
(flush drains dirty blocks, evict should reclaim clean ones). §4.6
states the intended behavior explicitly — "removes clean blocks from
inactive" — so Evict here operates on clean blocks, per spec rather than
per that apparent bug.
*/
package memory
