package model

import "fmt"

// File is an immutable identity: (id, size_bytes). Created once per
// simulation and never mutated.
type File struct {
	ID        string
	SizeBytes int64
}

// FileLocation is a structural triple (storage_service, mountpoint, path)
// plus an optional proxy overlay. Locations do not own the file; whether
// the file actually exists there is storage-service state.
type FileLocation struct {
	StorageService string
	Mountpoint     string
	Path           string

	// Overlay, set only when this location is reached through a proxy.
	ProxyService  string
	TargetService string
}

// IsProxied reports whether this location routes through a proxy overlay.
func (l FileLocation) IsProxied() bool { return l.ProxyService != "" }

// Equal implements structural equality, per spec §3.
func (l FileLocation) Equal(o FileLocation) bool {
	return l.StorageService == o.StorageService &&
		l.Mountpoint == o.Mountpoint &&
		l.Path == o.Path &&
		l.ProxyService == o.ProxyService &&
		l.TargetService == o.TargetService
}

func (l FileLocation) String() string {
	if l.IsProxied() {
		return fmt.Sprintf("%s@%s(remote=%s):%s", l.ProxyService, l.Mountpoint, l.TargetService, l.Path)
	}
	return fmt.Sprintf("%s@%s:%s", l.StorageService, l.Mountpoint, l.Path)
}

// ProxyLocation builds a FileLocation that forces reads/writes through a
// named proxy and carries a distinguished remote/target pair.
func ProxyLocation(proxyService, targetService, mountpoint, path string) FileLocation {
	return FileLocation{
		StorageService: proxyService,
		ProxyService:   proxyService,
		TargetService:  targetService,
		Mountpoint:     mountpoint,
		Path:           path,
	}
}

// SimpleLocation builds a plain, non-proxied FileLocation.
func SimpleLocation(storageService, mountpoint, path string) FileLocation {
	return FileLocation{StorageService: storageService, Mountpoint: mountpoint, Path: path}
}

// Disk describes one disk attached to a Host: name, mountpoint, capacity,
// and r/w bandwidth. Hosts and disks are externally defined and immutable
// during a run.
type Disk struct {
	Name           string
	Mountpoint     string
	CapacityBytes  int64
	ReadBandwidth  float64 // bytes/sec
	WriteBandwidth float64 // bytes/sec
}

// Host is a named compute node: core count, memory capacity, and its
// attached disks.
type Host struct {
	Name          string
	Cores         int
	MemoryBytes   int64
	FlopsPerCore  float64
	Disks         []*Disk
}

// DiskByMountpoint finds the disk mounted at the given path, if any.
func (h *Host) DiskByMountpoint(mountpoint string) *Disk {
	for _, d := range h.Disks {
		if d.Mountpoint == mountpoint {
			return d
		}
	}
	return nil
}

// Block is a disk cache page owned exclusively by the memory manager that
// tracks it: (file_id, size, last_access_time, dirty_bit).
type Block struct {
	FileID     string
	Size       int64
	LastAccess float64 // virtual time
	Dirty      bool
}
