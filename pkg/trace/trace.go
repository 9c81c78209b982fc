package trace

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/simforge/pkg/simerr"
)

// Record is one journaled event. Seq is the bucket's bbolt sequence
// number at the time of the append, so records sort in append order
// when a bucket is scanned key-first regardless of SimTime — two
// events can share a SimTime (the scheduler is allowed to advance
// several actors at once) but never a Seq.
type Record struct {
	Seq      uint64          `json:"seq"`
	SimTime  float64         `json:"sim_time"`
	Category string          `json:"category"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// Writer appends Records to one run's bucket in a bbolt file. The
// zero value is not usable; construct with Open.
type Writer struct {
	db     *bolt.DB
	bucket []byte
}

// Open creates (or opens) the bbolt file at path and ensures a bucket
// for runID exists, creating a fresh empty one if this is the first
// append to that run.
func Open(path, runID string) (*Writer, error) {
	if runID == "" {
		return nil, simerr.New(simerr.InvalidArgument, "trace")
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, simerr.Wrap(simerr.InternalError, "trace", err)
	}
	bucket := []byte(runID)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, simerr.Wrap(simerr.InternalError, "trace", err)
	}
	return &Writer{db: db, bucket: bucket}, nil
}

// Append journals one event under the writer's run bucket. payload is
// marshaled to JSON; pass nil when an event carries no data beyond its
// kind. Append never reads the bucket back — callers cannot observe
// or depend on what has already been written.
func (w *Writer) Append(simTime float64, category, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return simerr.Wrap(simerr.InternalError, "trace", err)
	}
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(w.bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec := Record{Seq: seq, SimTime: simTime, Category: category, Kind: kind, Payload: data}
		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), buf)
	})
}

// Close flushes and closes the underlying bbolt file.
func (w *Writer) Close() error {
	return w.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Reader reads back a completed run's journal. It is never used by a
// running simulation — only by the standalone "trace dump" inspection
// path — and opens the file read-only so it can never race a Writer
// that (by construction) only ever runs after the simulation it
// journals has already finished and closed its own Writer.
type Reader struct {
	db *bolt.DB
}

// OpenReader opens path read-only for inspection.
func OpenReader(path string) (*Reader, error) {
	db, err := bolt.Open(path, 0400, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, simerr.Wrap(simerr.InternalError, "trace", err)
	}
	return &Reader{db: db}, nil
}

// Runs lists the run IDs (bucket names) present in the journal file.
func (r *Reader) Runs() ([]string, error) {
	var runs []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			runs = append(runs, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, simerr.Wrap(simerr.InternalError, "trace", err)
	}
	return runs, nil
}

// Records returns every Record in runID's bucket, in append order.
func (r *Reader) Records(runID string) ([]Record, error) {
	var records []Record
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(runID))
		if b == nil {
			return fmt.Errorf("run not found: %s", runID)
		}
		return b.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, simerr.Wrap(simerr.InternalError, "trace", err)
	}
	return records, nil
}

// Close closes the underlying bbolt file.
func (r *Reader) Close() error {
	return r.db.Close()
}
