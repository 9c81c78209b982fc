package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/metrics"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/registry"
	"github.com/cuemby/simforge/pkg/simerr"
)

// diskState is one disk's file table and space accounting: free bytes is
// always capacity minus committed minus in-flight write reservations,
// per §4.4's "space accounting" rule.
type diskState struct {
	disk *model.Disk

	mu             sync.Mutex
	files          map[string]*model.File // path -> file
	committedBytes int64
	reservedBytes  int64
}

func (d *diskState) freeBytesLocked() int64 {
	return d.disk.CapacityBytes - d.committedBytes - d.reservedBytes
}

// Service is a simple storage service (C5): a host-pinned actor fronting
// one or more disks.
type Service struct {
	Name string
	Host *model.Host

	svcActor *actor.Actor
	clock    *clock.Clock
	mbox     *mailbox.System
	log      zerolog.Logger
	cb       *gobreaker.CircuitBreaker[any]
	reg      *registry.Registry

	disks map[string]*diskState // mountpoint -> state
}

// NewService builds a storage service over every disk attached to host.
// The returned Service starts down; call Start from whichever actor is
// setting up the simulation.
func NewService(name string, host *model.Host, clk *clock.Clock, mboxSys *mailbox.System) *Service {
	disks := make(map[string]*diskState, len(host.Disks))
	for _, d := range host.Disks {
		disks[d.Mountpoint] = &diskState{disk: d, files: make(map[string]*model.File)}
		metrics.StorageFreeBytes.WithLabelValues(name, d.Mountpoint).Set(float64(d.CapacityBytes))
	}

	svc := &Service{
		Name:     name,
		Host:     host,
		clock:    clk,
		mbox:     mboxSys,
		log:      log.WithComponent("storage." + name),
		disks:    disks,
		svcActor: actor.New(name, host, name+"_storage_mailbox", clk, mboxSys),
	}
	svc.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name + "-storage-remote",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return svc
}

// SetRegistry wires a file registry into the service: every successful
// CreateFile, Write, or incoming Copy commit records its location, and
// every Delete removes it, keeping registry[f] contains s iff
// s.hasFile(f) true at every observable instant. Call before Start;
// a Service with no registry set behaves exactly as before.
func (s *Service) SetRegistry(reg *registry.Registry) { s.reg = reg }

func (s *Service) registerFile(loc model.FileLocation, file *model.File) {
	if s.reg != nil {
		s.reg.AddEntry(*file, loc)
	}
}

func (s *Service) unregisterFile(fileID string, loc model.FileLocation) {
	if s.reg != nil {
		s.reg.RemoveEntry(fileID, loc)
	}
}

// Start brings the service up. The caller must currently hold the
// clock's turn.
func (s *Service) Start() {
	s.svcActor.Start(func(a *actor.Actor) error {
		<-a.Stopping()
		return nil
	})
}

// Stop winds the service down gracefully; Kill forces it down and fails
// anything in flight with simerr.ServiceIsDown.
func (s *Service) Stop() { s.svcActor.Stop() }
func (s *Service) Kill() { s.svcActor.Kill() }

// IsDown reports whether the service is currently down.
func (s *Service) IsDown() bool { return s.svcActor.State() == actor.StateDown }

func (s *Service) diskFor(mountpoint string) (*diskState, error) {
	d, ok := s.disks[mountpoint]
	if !ok {
		return nil, simerr.New(simerr.InvalidArgument, s.Name)
	}
	return d, nil
}

// FreeBytes reports capacity minus committed minus in-flight write
// reservations for the disk at mountpoint, per §4.4's space-accounting
// rule and the "conservation of cache bytes" testable property.
func (s *Service) FreeBytes(mountpoint string) (int64, error) {
	d, err := s.diskFor(mountpoint)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freeBytesLocked(), nil
}

// Lookup reports whether a file currently exists at loc. Per §4.4 it
// never fails — an unknown mountpoint or a down service is just "no".
func (s *Service) Lookup(loc model.FileLocation) bool {
	if s.IsDown() {
		return false
	}
	d, err := s.diskFor(loc.Mountpoint)
	if err != nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.files[loc.Path]
	return ok
}

// FileAt returns the metadata for the file at loc without performing any
// transfer, for callers that only need to know a file exists and its
// size (the proxy's MagicRead and remote-size probes).
func (s *Service) FileAt(loc model.FileLocation) (*model.File, error) {
	d, err := s.diskFor(loc.Mountpoint)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	file, ok := d.files[loc.Path]
	if !ok {
		return nil, simerr.New(simerr.FileNotFound, s.Name)
	}
	return file, nil
}

// CreateFile instantiates file at loc with no transfer — used by
// scenario setup to seed initial file placement, and by callers that
// must bypass the proxy's ambiguity guard by naming a concrete storage
// service directly.
func (s *Service) CreateFile(loc model.FileLocation, file *model.File) error {
	if s.IsDown() {
		return simerr.New(simerr.ServiceIsDown, s.Name)
	}
	d, err := s.diskFor(loc.Mountpoint)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.freeBytesLocked() < file.SizeBytes {
		return simerr.New(simerr.NotEnoughSpace, s.Name)
	}
	d.files[loc.Path] = file
	d.committedBytes += file.SizeBytes
	metrics.StorageFreeBytes.WithLabelValues(s.Name, loc.Mountpoint).Set(float64(d.freeBytesLocked()))
	s.registerFile(loc, file)
	return nil
}

// Delete removes the file at loc, if any. Idempotent: deleting an
// already-absent file is not an error, per §4.4.
func (s *Service) Delete(loc model.FileLocation) error {
	if s.IsDown() {
		return simerr.New(simerr.ServiceIsDown, s.Name)
	}
	d, err := s.diskFor(loc.Mountpoint)
	if err != nil {
		return nil
	}
	d.mu.Lock()
	file, ok := d.files[loc.Path]
	if ok {
		delete(d.files, loc.Path)
		d.committedBytes -= file.SizeBytes
		metrics.StorageFreeBytes.WithLabelValues(s.Name, loc.Mountpoint).Set(float64(d.freeBytesLocked()))
	}
	d.mu.Unlock()
	if ok {
		s.unregisterFile(file.ID, loc)
	}
	return nil
}

// Read suspends the calling actor until numBytes (or the whole file,
// when numBytes <= 0) has "arrived" from loc. It spawns a
// fileTransferThread and blocks on a private answer mailbox, exactly the
// protocol described in doc.go.
func (s *Service) Read(callerID string, loc model.FileLocation, numBytes int64) error {
	if s.IsDown() {
		return simerr.New(simerr.ServiceIsDown, s.Name)
	}
	d, err := s.diskFor(loc.Mountpoint)
	if err != nil {
		return err
	}

	d.mu.Lock()
	file, ok := d.files[loc.Path]
	d.mu.Unlock()
	if !ok {
		return simerr.New(simerr.FileNotFound, s.Name)
	}
	if numBytes <= 0 {
		numBytes = file.SizeBytes
	}

	answerMailbox := s.Name + "_reply_" + uuid.NewString()
	duration := transferDuration(numBytes, d.disk.ReadBandwidth, 0)
	t := newFileTransferThread(transferRead, numBytes, duration, answerMailbox, callerID, s.svcActor.Stopping(), nil, s.clock, s.mbox)
	t.start()

	return awaitTransfer(s.mbox, s.Name, answerMailbox)
}

// Write reserves space for file at loc, then suspends the calling actor
// until the bytes have "landed". The reservation is released on any
// failure — mid-transfer cancellation included — and committed as part
// of the transfer thread's commit step on success.
func (s *Service) Write(callerID string, loc model.FileLocation, file *model.File) error {
	if s.IsDown() {
		return simerr.New(simerr.ServiceIsDown, s.Name)
	}
	d, err := s.diskFor(loc.Mountpoint)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.freeBytesLocked() < file.SizeBytes {
		d.mu.Unlock()
		return simerr.New(simerr.NotEnoughSpace, s.Name)
	}
	d.reservedBytes += file.SizeBytes
	d.mu.Unlock()

	answerMailbox := s.Name + "_reply_" + uuid.NewString()
	duration := transferDuration(file.SizeBytes, 0, d.disk.WriteBandwidth)

	commit := func() error {
		d.mu.Lock()
		d.reservedBytes -= file.SizeBytes
		d.files[loc.Path] = file
		d.committedBytes += file.SizeBytes
		metrics.StorageFreeBytes.WithLabelValues(s.Name, loc.Mountpoint).Set(float64(d.freeBytesLocked()))
		d.mu.Unlock()
		s.registerFile(loc, file)
		return nil
	}

	t := newFileTransferThread(transferWrite, file.SizeBytes, duration, answerMailbox, callerID, s.svcActor.Stopping(), commit, s.clock, s.mbox)
	t.start()

	if err := awaitTransfer(s.mbox, s.Name, answerMailbox); err != nil {
		// commit only runs on a completed transfer, so a failure here
		// means commit never ran and the reservation is still held.
		d.mu.Lock()
		d.reservedBytes -= file.SizeBytes
		d.mu.Unlock()
		return err
	}
	return nil
}

// copyLocal handles Copy when src and dst name the same Service: one
// transfer thread, no network leg, per §4.4.
func (s *Service) copyLocal(callerID string, src, dst model.FileLocation) error {
	if s.IsDown() {
		return simerr.New(simerr.ServiceIsDown, s.Name)
	}
	srcDisk, err := s.diskFor(src.Mountpoint)
	if err != nil {
		return err
	}
	dstDisk, err := s.diskFor(dst.Mountpoint)
	if err != nil {
		return err
	}
	return runCopyTransfer(s, s, srcDisk, dstDisk, callerID, src, dst)
}

// Copy moves the file at src to dst. When src and dst are on the same
// Service, it collapses to copyLocal; otherwise it runs a single
// cross-service transfer thread, guarded by the destination's circuit
// breaker against a repeatedly-faulting remote.
func Copy(callerID string, srcSvc, dstSvc *Service, src, dst model.FileLocation) error {
	if srcSvc == dstSvc {
		return srcSvc.copyLocal(callerID, src, dst)
	}
	if srcSvc.IsDown() {
		return simerr.New(simerr.ServiceIsDown, srcSvc.Name)
	}
	if dstSvc.IsDown() {
		return simerr.New(simerr.ServiceIsDown, dstSvc.Name)
	}
	srcDisk, err := srcSvc.diskFor(src.Mountpoint)
	if err != nil {
		return err
	}
	dstDisk, err := dstSvc.diskFor(dst.Mountpoint)
	if err != nil {
		return err
	}

	_, err = dstSvc.cb.Execute(func() (any, error) {
		return nil, runCopyTransfer(srcSvc, dstSvc, srcDisk, dstDisk, callerID, src, dst)
	})
	if err != nil && err == gobreaker.ErrOpenState {
		return simerr.New(simerr.HostError, dstSvc.Name)
	}
	return err
}

// runCopyTransfer is the shared copy path for both copyLocal and the
// cross-service Copy: look up the source file, reserve space at the
// destination, spawn the transfer thread, and await it.
func runCopyTransfer(srcSvc, dstSvc *Service, srcDisk, dstDisk *diskState, callerID string, src, dst model.FileLocation) error {
	srcDisk.mu.Lock()
	file, ok := srcDisk.files[src.Path]
	srcDisk.mu.Unlock()
	if !ok {
		return simerr.New(simerr.FileNotFound, srcSvc.Name)
	}

	dstDisk.mu.Lock()
	if dstDisk.freeBytesLocked() < file.SizeBytes {
		dstDisk.mu.Unlock()
		return simerr.New(simerr.NotEnoughSpace, dstSvc.Name)
	}
	dstDisk.reservedBytes += file.SizeBytes
	dstDisk.mu.Unlock()

	answerMailbox := dstSvc.Name + "_reply_" + uuid.NewString()
	duration := transferDuration(file.SizeBytes, srcDisk.disk.ReadBandwidth, dstDisk.disk.WriteBandwidth)

	commit := func() error {
		dstDisk.mu.Lock()
		dstDisk.reservedBytes -= file.SizeBytes
		dstDisk.files[dst.Path] = file
		dstDisk.committedBytes += file.SizeBytes
		metrics.StorageFreeBytes.WithLabelValues(dstSvc.Name, dst.Mountpoint).Set(float64(dstDisk.freeBytesLocked()))
		dstDisk.mu.Unlock()
		dstSvc.registerFile(dst, file)
		return nil
	}

	cancel := srcSvc.svcActor.Stopping()
	if dstSvc != srcSvc {
		cancel = anyClosed(srcSvc.svcActor.Stopping(), dstSvc.svcActor.Stopping())
	}

	t := newFileTransferThread(transferCopy, file.SizeBytes, duration, answerMailbox, callerID, cancel, commit, dstSvc.clock, dstSvc.mbox)
	t.start()

	if err := awaitTransfer(dstSvc.mbox, dstSvc.Name, answerMailbox); err != nil {
		dstDisk.mu.Lock()
		dstDisk.reservedBytes -= file.SizeBytes
		dstDisk.mu.Unlock()
		return err
	}
	return nil
}
