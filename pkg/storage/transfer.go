package storage

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/simerr"
)

type transferKind string

const (
	transferRead  transferKind = "read"
	transferWrite transferKind = "write"
	transferCopy  transferKind = "copy"
)

// transferNotification is the wire payload a fileTransferThread delivers
// to its caller's answer mailbox, mirroring
// FileTransferThreadNotificationMessage's success/failure-cause pair.
type transferNotification struct {
	TransferID  string `json:"transfer_id"`
	Kind        string `json:"kind"`
	Success     bool   `json:"success"`
	FailureKind string `json:"failure_kind,omitempty"`
}

// fileTransferThread is a one-shot transfer: it sleeps for the duration
// implied by num_bytes/bandwidth, then — unless the hosting actor was
// killed first — runs commit and reports the outcome on answerMailbox.
// commit is nil for a plain read, which has nothing to commit.
type fileTransferThread struct {
	id              string
	kind            transferKind
	numBytes        int64
	durationSeconds float64
	answerMailbox   string
	senderID        string
	cancel          <-chan struct{}
	commit          func() error

	clock *clock.Clock
	mbox  *mailbox.System
}

func newFileTransferThread(kind transferKind, numBytes int64, durationSeconds float64, answerMailbox, senderID string, cancel <-chan struct{}, commit func() error, clk *clock.Clock, mbox *mailbox.System) *fileTransferThread {
	return &fileTransferThread{
		id:              uuid.NewString(),
		kind:            kind,
		numBytes:        numBytes,
		durationSeconds: durationSeconds,
		answerMailbox:   answerMailbox,
		senderID:        senderID,
		cancel:          cancel,
		commit:          commit,
		clock:           clk,
		mbox:            mbox,
	}
}

// start spawns the thread as its own clock-scheduled actor and returns
// immediately; the caller awaits the result on answerMailbox.
func (t *fileTransferThread) start() {
	t.clock.Spawn(func() {
		defer t.clock.Leave()

		completed := t.clock.SuspendUntil(t.cancel, true, t.durationSeconds)

		note := transferNotification{TransferID: t.id, Kind: string(t.kind)}
		switch {
		case !completed:
			note.Success = false
			note.FailureKind = string(simerr.ServiceIsDown)
		case t.commit != nil:
			if err := t.commit(); err != nil {
				note.Success = false
				if kind, ok := simerr.Of(err); ok {
					note.FailureKind = string(kind)
				} else {
					note.FailureKind = string(simerr.InternalError)
				}
			} else {
				note.Success = true
			}
		default:
			note.Success = true
		}

		payload, err := json.Marshal(note)
		if err != nil {
			return
		}
		_ = t.mbox.Put(t.answerMailbox, t.senderID, t.numBytes, payload)
	})
}

// awaitTransfer blocks the calling actor until the transfer thread
// answers on mailboxName, then translates its notification into an
// error (nil on success).
func awaitTransfer(mbox *mailbox.System, serviceName, mailboxName string) error {
	env, err := mbox.Get(mailboxName)
	if err != nil {
		return err
	}
	var note transferNotification
	if err := json.Unmarshal(env.Body, &note); err != nil {
		return simerr.Wrap(simerr.InternalError, serviceName, err)
	}
	if !note.Success {
		return simerr.New(simerr.Kind(note.FailureKind), serviceName)
	}
	return nil
}

// transferDuration picks the slower of a read and write bandwidth (0
// meaning "not applicable") to model the bottleneck leg of a transfer; no
// explicit network-link model exists in this package, so a mailbox-side
// endpoint is treated as unlimited-bandwidth (see DESIGN.md).
func transferDuration(numBytes int64, readBandwidth, writeBandwidth float64) float64 {
	rate := readBandwidth
	if writeBandwidth > 0 && (rate <= 0 || writeBandwidth < rate) {
		rate = writeBandwidth
	}
	if rate <= 0 {
		return 0
	}
	return float64(numBytes) / rate
}

// anyClosed fans two stop signals into one, for transfers that must
// watch two different services' Stopping() channels (cross-service
// copy).
func anyClosed(a, b <-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		select {
		case <-a:
		case <-b:
		}
		close(out)
	}()
	return out
}
