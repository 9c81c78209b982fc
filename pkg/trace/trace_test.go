package trace

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	JobID string `json:"job_id"`
}

func TestAppendAndReadBackRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")

	w, err := Open(path, "run-1")
	require.NoError(t, err)
	require.NoError(t, w.Append(0, "batch", "job.submitted", samplePayload{JobID: "job1"}))
	require.NoError(t, w.Append(1.5, "batch", "job.completed", samplePayload{JobID: "job1"}))
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.Records("run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, uint64(1), records[0].Seq)
	assert.Equal(t, float64(0), records[0].SimTime)
	assert.Equal(t, "job.submitted", records[0].Kind)

	assert.Equal(t, uint64(2), records[1].Seq)
	assert.Equal(t, 1.5, records[1].SimTime)
	assert.Equal(t, "job.completed", records[1].Kind)

	var payload samplePayload
	require.NoError(t, json.Unmarshal(records[1].Payload, &payload))
	assert.Equal(t, "job1", payload.JobID)
}

func TestOpenRejectsEmptyRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	_, err := Open(path, "")
	assert.Error(t, err)
}

func TestRunsListsBucketsByRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")

	w1, err := Open(path, "run-a")
	require.NoError(t, err)
	require.NoError(t, w1.Append(0, "batch", "started", nil))
	require.NoError(t, w1.Close())

	w2, err := Open(path, "run-b")
	require.NoError(t, err)
	require.NoError(t, w2.Append(0, "batch", "started", nil))
	require.NoError(t, w2.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	runs, err := r.Runs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-a", "run-b"}, runs)
}

func TestRecordsRejectsUnknownRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	w, err := Open(path, "run-1")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Records("nope")
	assert.Error(t, err)
}

func TestAppendAssignsMonotonicSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	w, err := Open(path, "run-1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(float64(i), "controller", "tick", nil))
	}
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.Records("run-1")
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.Seq)
	}
}
