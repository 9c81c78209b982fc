package proxy

import (
	"sync/atomic"

	"github.com/OneOfOne/xxhash"

	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
	"github.com/cuemby/simforge/pkg/storage"
)

// SelectionMethod picks which child cache a Federation routes a given
// file to, narrowing CompoundStorageService.h's general child-selection
// policy down to the STORAGE_SELECTION_METHOD config keys spec §6
// names.
type SelectionMethod int

const (
	// RoundRobin rotates through children in order, independent of the
	// file being placed.
	RoundRobin SelectionMethod = iota
	// LeastLoaded picks whichever child currently reports the most free
	// bytes at mountpoint.
	LeastLoaded
	// External hashes the file ID so the same file always lands on the
	// same child, without any shared placement state.
	External
)

// Federation is a thin multi-child proxy: every file-moving call is
// routed to exactly one child storage.Service chosen by method, rather
// than to a single fixed cache.
type Federation struct {
	Name string

	children   []*storage.Service
	mountpoint string
	method     SelectionMethod
	rrNext     uint64
}

// NewFederation builds a Federation over children, all expected to
// expose a disk at mountpoint.
func NewFederation(name string, children []*storage.Service, mountpoint string, method SelectionMethod) (*Federation, error) {
	if len(children) == 0 {
		return nil, simerr.New(simerr.InvalidArgument, name)
	}
	return &Federation{Name: name, children: children, mountpoint: mountpoint, method: method}, nil
}

// ChildFor picks the child responsible for fileID, per the Federation's
// configured SelectionMethod.
func (f *Federation) ChildFor(fileID string) *storage.Service {
	switch f.method {
	case LeastLoaded:
		return f.leastLoaded()
	case External:
		h := xxhash.ChecksumString64(fileID)
		return f.children[h%uint64(len(f.children))]
	default: // RoundRobin
		n := atomic.AddUint64(&f.rrNext, 1) - 1
		return f.children[n%uint64(len(f.children))]
	}
}

func (f *Federation) leastLoaded() *storage.Service {
	best := f.children[0]
	bestFree, _ := best.FreeBytes(f.mountpoint)
	for _, child := range f.children[1:] {
		free, err := child.FreeBytes(f.mountpoint)
		if err != nil {
			continue
		}
		if free > bestFree {
			best, bestFree = child, free
		}
	}
	return best
}

// Lookup reports whether fileID's assigned child has a file at path.
func (f *Federation) Lookup(fileID, path string) bool {
	child := f.ChildFor(fileID)
	return child.Lookup(model.SimpleLocation(child.Name, f.mountpoint, path))
}

// Read suspends until fileID has been read from its assigned child.
func (f *Federation) Read(callerID, fileID, path string, numBytes int64) error {
	child := f.ChildFor(fileID)
	return child.Read(callerID, model.SimpleLocation(child.Name, f.mountpoint, path), numBytes)
}

// Write suspends until file has been written to its assigned child.
func (f *Federation) Write(callerID, path string, file *model.File) error {
	child := f.ChildFor(file.ID)
	return child.Write(callerID, model.SimpleLocation(child.Name, f.mountpoint, path), file)
}
