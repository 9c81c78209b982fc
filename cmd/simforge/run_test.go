package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/simforge/pkg/batch"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/config"
	"github.com/cuemby/simforge/pkg/controller"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/registry"
	"github.com/cuemby/simforge/pkg/storage"
	"github.com/cuemby/simforge/pkg/trace"
)

func testHost(name string) *model.Host {
	disk := &model.Disk{Name: "disk0", Mountpoint: "/scratch", CapacityBytes: 1 << 30, ReadBandwidth: 1e9, WriteBandwidth: 1e9}
	return &model.Host{Name: name, Cores: 4, FlopsPerCore: 1e9, Disks: []*model.Disk{disk}}
}

func TestBuildCompoundJobWiresReadComputeWriteActions(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	host := testHost("host1")
	svc := storage.NewService("storage1", host, clk, mbox)

	clk.Join()
	svc.Start()
	loc := model.SimpleLocation("storage1", "/scratch", "input.dat")
	require.NoError(t, svc.CreateFile(loc, &model.File{ID: "input.dat", SizeBytes: 100}))
	clk.Leave()

	d := &driver{targets: map[string]ioTarget{"storage1": svc}}

	js := config.JobSpec{
		ID: "job1",
		Actions: []config.ActionSpec{
			{Name: "read-in", Type: "read", Service: "storage1", Mountpoint: "/scratch", Path: "input.dat", Bytes: 100},
			{Name: "compute", Type: "compute", Flops: 1000, Parents: []string{"read-in"}},
			{Name: "write-out", Type: "write", Service: "storage1", Mountpoint: "/scratch", Path: "output.dat", FileID: "output.dat", Bytes: 200, Parents: []string{"compute"}},
		},
	}

	cj, err := d.buildCompoundJob(js)
	require.NoError(t, err)
	require.Len(t, cj.Actions(), 3)

	_, ok := cj.Action("read-in")
	assert.True(t, ok)
	_, ok = cj.Action("compute")
	assert.True(t, ok)
	write, ok := cj.Action("write-out")
	assert.True(t, ok)
	assert.Equal(t, "write-out", write.Name)
}

func TestBuildCompoundJobRejectsUnknownService(t *testing.T) {
	d := &driver{targets: map[string]ioTarget{}}
	js := config.JobSpec{
		ID: "job1",
		Actions: []config.ActionSpec{
			{Name: "read-in", Type: "read", Service: "nope"},
		},
	}
	_, err := d.buildCompoundJob(js)
	assert.Error(t, err)
}

func TestBuildCompoundJobDefaultsToNoopCompute(t *testing.T) {
	d := &driver{targets: map[string]ioTarget{}}
	cj, err := d.buildCompoundJob(config.JobSpec{ID: "job1"})
	require.NoError(t, err)
	require.Len(t, cj.Actions(), 1)
	_, ok := cj.Action("noop")
	assert.True(t, ok)
}

func TestDriverRunSubmitsAllJobsAndDrainsEvents(t *testing.T) {
	clk := clock.New()
	mbox := mailbox.NewSystem(clk)
	defer mbox.Close()

	host := testHost("host1")
	storages := map[string]*storage.Service{"storage1": storage.NewService("storage1", host, clk, mbox)}
	batchSvcs := map[string]*batch.Service{"batch1": batch.NewService("batch1", []*model.Host{host}, batch.FCFS, clk, mbox)}
	reg := registry.New("registry", host, clk, mbox)

	path := filepath.Join(t.TempDir(), "run.db")
	tw, err := trace.Open(path, "run-1")
	require.NoError(t, err)

	scenario := config.Scenario{
		Jobs: []config.JobSpec{
			{ID: "job1", BatchService: "batch1", Args: map[string]string{"-N": "1", "-c": "1", "-t": "5"}},
			{ID: "job2", BatchService: "batch1", Args: map[string]string{"-N": "1", "-c": "1", "-t": "5"}},
		},
	}

	clk.Join()
	storages["storage1"].Start()
	batchSvcs["batch1"].Start()
	reg.Start()

	ctrl := controller.New("driver", host, clk, mbox)
	var runErr error
	ctrl.Start(func(c *controller.Controller) error {
		d := &driver{
			controller: c,
			clock:      clk,
			scenario:   scenario,
			batchSvcs:  batchSvcs,
			targets:    map[string]ioTarget{},
			trace:      tw,
			storages:   storages,
			registry:   reg,
		}
		runErr = d.run()
		return runErr
	})
	clk.Leave()
	<-ctrl.Done()

	require.NoError(t, runErr)
	require.NoError(t, tw.Close())

	r, err := trace.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.Records("run-1")
	require.NoError(t, err)
	assert.Len(t, records, 4) // 2x job.submitted, 2x job.completed
}
