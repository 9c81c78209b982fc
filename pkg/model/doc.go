// Package model holds the simulation's immutable identity types: files,
// locations, hosts, disks, and the cache blocks the memory manager tracks.
//
// Files are created once and never mutated. A FileLocation names where a
// file lives (storage service, mountpoint, path) and never owns the file
// itself — existence at a location is storage-service state, tracked by
// pkg/storage, not by the location value.
package model
