package controller

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simforge/pkg/actor"
	"github.com/cuemby/simforge/pkg/batch"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/job"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/simerr"
)

func testHost() *model.Host { return &model.Host{Name: "host1", Cores: 4, FlopsPerCore: 10} }

func TestWaitForNextEventDecodesCompoundJobCompleted(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	host := testHost()
	svc := batch.NewService("batch1", []*model.Host{host}, batch.FCFS, clk, mbox)
	j := job.NewCompoundJob("job1", false)
	_, err := j.AddComputeAction("compute", 10)
	require.NoError(t, err)

	ctrl := New("ctrl1", host, clk, mbox)

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	var waitErr error

	clk.Join()
	svc.Start()
	ctrl.Start(func(c *Controller) error {
		defer wg.Done()
		got, waitErr = c.WaitForNextEvent()
		return nil
	})
	jobID, err := svc.Submit(batch.SubmissionArgs{Nodes: 1, CoresPerNode: 2, WallclockMinutes: 5}, j, ctrl.Mailbox(), nil)
	require.NoError(t, err)
	clk.Leave()

	wg.Wait()
	require.NoError(t, waitErr)
	assert.Equal(t, EventKindCompoundJobCompleted, got.Kind)
	require.NotNil(t, got.CompoundJobCompleted)
	assert.Equal(t, jobID, got.CompoundJobCompleted.JobID)
}

func TestWaitForAndProcessNextEventDispatchesFailedHandler(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	host := testHost()
	svc := batch.NewService("batch1", []*model.Host{host}, batch.FCFS, clk, mbox)
	j := job.NewCompoundJob("job1", false)
	_, err := j.AddAction("fail", nil, func(a *actor.Actor) error {
		return errors.New("boom")
	}, nil)
	require.NoError(t, err)

	ctrl := New("ctrl1", host, clk, mbox)

	var wg sync.WaitGroup
	wg.Add(1)
	var failed batch.CompoundJobFailedEvent
	var processErr error

	clk.Join()
	svc.Start()
	ctrl.Start(func(c *Controller) error {
		defer wg.Done()
		processErr = c.WaitForAndProcessNextEvent(Handlers{
			OnCompoundJobFailed: func(e batch.CompoundJobFailedEvent) { failed = e },
		})
		return nil
	})
	jobID, err := svc.Submit(batch.SubmissionArgs{Nodes: 1, CoresPerNode: 2, WallclockMinutes: 5}, j, ctrl.Mailbox(), nil)
	require.NoError(t, err)
	clk.Leave()

	wg.Wait()
	require.NoError(t, processErr)
	assert.Equal(t, jobID, failed.JobID)
	assert.Equal(t, "fail", failed.FailingAction)
}

func TestSubmitFileCopyReportsCompletedAndFailed(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	host := testHost()
	ctrl := New("ctrl1", host, clk, mbox)

	var wg1 sync.WaitGroup
	wg1.Add(1)
	var completed Event
	var err1 error

	clk.Join()
	ctrl.Start(func(c *Controller) error {
		defer wg1.Done()
		completed, err1 = c.WaitForNextEvent()
		return nil
	})
	copyID := ctrl.SubmitFileCopy(func() error { return nil })
	clk.Leave()

	wg1.Wait()
	require.NoError(t, err1)
	assert.Equal(t, EventKindFileCopyCompleted, completed.Kind)
	require.NotNil(t, completed.FileCopyCompleted)
	assert.Equal(t, copyID, completed.FileCopyCompleted.CopyID)

	ctrl2 := New("ctrl2", host, clk, mbox)
	var wg2 sync.WaitGroup
	wg2.Add(1)
	var failed Event
	var err2 error

	clk.Join()
	ctrl2.Start(func(c *Controller) error {
		defer wg2.Done()
		failed, err2 = c.WaitForNextEvent()
		return nil
	})
	failCopyID := ctrl2.SubmitFileCopy(func() error { return simerr.New(simerr.FileNotFound, "storage1") })
	clk.Leave()

	wg2.Wait()
	require.NoError(t, err2)
	assert.Equal(t, EventKindFileCopyFailed, failed.Kind)
	require.NotNil(t, failed.FileCopyFailed)
	assert.Equal(t, failCopyID, failed.FileCopyFailed.CopyID)
	assert.Equal(t, string(simerr.FileNotFound), failed.FileCopyFailed.Cause)
}

func TestScheduleTimerFiresAfterDelay(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	host := testHost()
	ctrl := New("ctrl1", host, clk, mbox)

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	var waitErr error

	clk.Join()
	ctrl.Start(func(c *Controller) error {
		defer wg.Done()
		got, waitErr = c.WaitForNextEvent()
		return nil
	})
	ctrl.ScheduleTimer("tick", 5)
	clk.Leave()

	wg.Wait()
	require.NoError(t, waitErr)
	assert.Equal(t, EventKindTimer, got.Kind)
	require.NotNil(t, got.Timer)
	assert.Equal(t, "tick", got.Timer.Name)
	assert.Equal(t, 5.0, clk.Now())
}
