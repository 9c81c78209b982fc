package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/simforge/pkg/batch"
	"github.com/cuemby/simforge/pkg/clock"
	"github.com/cuemby/simforge/pkg/config"
	"github.com/cuemby/simforge/pkg/controller"
	"github.com/cuemby/simforge/pkg/job"
	"github.com/cuemby/simforge/pkg/log"
	"github.com/cuemby/simforge/pkg/mailbox"
	"github.com/cuemby/simforge/pkg/memory"
	"github.com/cuemby/simforge/pkg/metrics"
	"github.com/cuemby/simforge/pkg/model"
	"github.com/cuemby/simforge/pkg/proxy"
	"github.com/cuemby/simforge/pkg/registry"
	"github.com/cuemby/simforge/pkg/simerr"
	"github.com/cuemby/simforge/pkg/storage"
	"github.com/cuemby/simforge/pkg/trace"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scenario to quiescence and write its trace journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("trace-out", "", "Path to write the bbolt trace journal (defaults to <scenario>.trace.db)")
	runCmd.Flags().String("run-id", "", "Run identifier used as the trace journal's bucket name (defaults to a generated UUID)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "Address the metrics/health HTTP server listens on")
}

// ioTarget is satisfied by both *storage.Service and *proxy.Proxy,
// letting an ActionSpec's "service" name resolve to either without the
// caller needing to know which kind it names.
type ioTarget interface {
	Read(callerID string, loc model.FileLocation, numBytes int64) error
	Write(callerID string, loc model.FileLocation, file *model.File) error
}

func runRun(cmd *cobra.Command, args []string) error {
	scenarioPath := args[0]
	traceOut, _ := cmd.Flags().GetString("trace-out")
	runID, _ := cmd.Flags().GetString("run-id")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	if traceOut == "" {
		traceOut = scenarioPath + ".trace.db"
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	scenario, err := config.Load(scenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}

	tw, err := trace.Open(traceOut, runID)
	if err != nil {
		return fmt.Errorf("open trace journal: %w", err)
	}
	defer tw.Close()

	clk := clock.New()
	mboxSys := mailbox.NewSystem(clk)
	defer func() { _ = mboxSys.Close() }()

	hosts := make(map[string]*model.Host, len(scenario.Hosts))
	for _, hs := range scenario.Hosts {
		hosts[hs.Name] = hs.ToModel()
	}
	if len(hosts) == 0 {
		return simerr.New(simerr.InvalidArgument, "simforge")
	}
	driverHost := hosts[scenario.Hosts[0].Name]

	reg := registry.New("registry", driverHost, clk, mboxSys)

	storages := make(map[string]*storage.Service, len(scenario.StorageServices))
	for _, ss := range scenario.StorageServices {
		host, ok := hosts[ss.Host]
		if !ok {
			return fmt.Errorf("storage service %q: unknown host %q", ss.Name, ss.Host)
		}
		svc := storage.NewService(ss.Name, host, clk, mboxSys)
		svc.SetRegistry(reg)
		storages[ss.Name] = svc
	}

	readMethod, err := scenario.Cache.UncachedReadMethod.ToProxyReadMethod()
	if err != nil {
		return err
	}

	proxies := make(map[string]*proxy.Proxy, len(scenario.Proxies))
	memMgrs := make([]*memory.Manager, 0, len(scenario.Proxies))
	for _, ps := range scenario.Proxies {
		cache, ok := storages[ps.Cache]
		if !ok {
			return fmt.Errorf("proxy %q: unknown cache storage service %q", ps.Name, ps.Cache)
		}
		cacheHostName := ""
		for _, ss := range scenario.StorageServices {
			if ss.Name == ps.Cache {
				cacheHostName = ss.Host
				break
			}
		}
		cacheHost, ok := hosts[cacheHostName]
		if !ok {
			return fmt.Errorf("proxy %q: cache storage service %q has no known host", ps.Name, ps.Cache)
		}
		cacheDisk := cacheHost.DiskByMountpoint(ps.CacheMountpoint)
		if cacheDisk == nil {
			return fmt.Errorf("proxy %q: host %q has no disk at mountpoint %q", ps.Name, cacheHostName, ps.CacheMountpoint)
		}

		remotes := make(map[string]*storage.Service, len(ps.Remotes))
		for alias, svcName := range ps.Remotes {
			remote, ok := storages[svcName]
			if !ok {
				return fmt.Errorf("proxy %q: unknown remote storage service %q", ps.Name, svcName)
			}
			remotes[alias] = remote
		}

		var memMgr *memory.Manager
		if scenario.Cache.CachingBehavior != config.CachingNone {
			memMgr = memory.NewManager(
				cacheHost, cacheDisk,
				proxyMemoryCapacity(ps, cacheDisk),
				proxyOrDefault(ps.DirtyRatio, config.DefaultDirtyRatio),
				proxyOrDefault(ps.FlushIntervalSeconds, config.DefaultFlushIntervalSeconds),
				proxyOrDefault(ps.ExpiredTimeSeconds, config.DefaultExpiredTimeSeconds),
				clk, mboxSys,
			)
			memMgrs = append(memMgrs, memMgr)
		}

		p, err := proxy.NewProxy(ps.Name, cache, ps.CacheMountpoint, remotes, ps.DefaultRemote, readMethod, clk, memMgr)
		if err != nil {
			return fmt.Errorf("proxy %q: %w", ps.Name, err)
		}
		proxies[ps.Name] = p
	}

	targets := make(map[string]ioTarget, len(storages)+len(proxies))
	for name, svc := range storages {
		targets[name] = svc
	}
	for name, p := range proxies {
		targets[name] = p
	}

	for _, ss := range scenario.StorageServices {
		reg.RegisterServiceHost(ss.Name, ss.Host)
	}

	batchSvcs := make(map[string]*batch.Service, len(scenario.BatchServices))
	for _, bs := range scenario.BatchServices {
		candidateHosts := make([]*model.Host, 0, len(bs.Hosts))
		for _, hn := range bs.Hosts {
			host, ok := hosts[hn]
			if !ok {
				return fmt.Errorf("batch service %q: unknown host %q", bs.Name, hn)
			}
			candidateHosts = append(candidateHosts, host)
		}
		batchSvcs[bs.Name] = batch.NewService(bs.Name, candidateHosts, batch.PlacementPolicy(bs.PlacementPolicy()), clk, mboxSys)
	}

	metrics.SetVersion(Version)
	metrics.SetCriticalComponents("clock", "mailbox")
	metrics.RegisterComponent("clock", true, "running")
	metrics.RegisterComponent("mailbox", true, "running")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server error", err)
		}
	}()
	defer srv.Close()

	clk.Join()

	for _, svc := range storages {
		svc.Start()
	}
	for _, svc := range batchSvcs {
		svc.Start()
	}
	for _, mm := range memMgrs {
		mm.Start()
	}
	reg.Start()

	drv := controller.New("driver", driverHost, clk, mboxSys)

	runStart := time.Now()
	drv.Start(func(c *controller.Controller) error {
		d := &driver{
			controller: c,
			clock:      clk,
			scenario:   scenario,
			batchSvcs:  batchSvcs,
			targets:    targets,
			trace:      tw,
			storages:   storages,
			registry:   reg,
			memMgrs:    memMgrs,
		}
		return d.run()
	})

	clk.Leave()
	<-drv.Done()
	metrics.RunDuration.Observe(time.Since(runStart).Seconds())

	return nil
}

// driver is the simulation's root controller body: it submits every
// scenario job, waits for each to settle, and winds every service down
// once the last one does.
type driver struct {
	controller *controller.Controller
	clock      *clock.Clock
	scenario   config.Scenario
	batchSvcs  map[string]*batch.Service
	targets    map[string]ioTarget
	trace      *trace.Writer
	storages   map[string]*storage.Service
	registry   *registry.Registry
	memMgrs    []*memory.Manager
}

func (d *driver) run() error {
	pending := 0
	for _, js := range d.scenario.Jobs {
		batchSvc, ok := d.batchSvcs[js.BatchService]
		if !ok {
			return fmt.Errorf("job %q: unknown batch service %q", js.ID, js.BatchService)
		}
		submissionArgs, err := batch.ParseSubmissionArgs(js.Args)
		if err != nil {
			return fmt.Errorf("job %q: %w", js.ID, err)
		}
		cj, err := d.buildCompoundJob(js)
		if err != nil {
			return fmt.Errorf("job %q: %w", js.ID, err)
		}
		if _, err := batchSvc.Submit(submissionArgs, cj, d.controller.Mailbox(), js.Overrides); err != nil {
			return fmt.Errorf("job %q: submit: %w", js.ID, err)
		}
		d.append("batch", "job.submitted", map[string]string{"job_id": js.ID, "batch_service": js.BatchService})
		pending++
	}

	for pending > 0 {
		ev, err := d.controller.WaitForNextEvent()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case controller.EventKindCompoundJobCompleted:
			d.append("batch", "job.completed", ev.CompoundJobCompleted)
			pending--
		case controller.EventKindCompoundJobFailed:
			d.append("batch", "job.failed", ev.CompoundJobFailed)
			pending--
		default:
			d.append("controller", string(ev.Kind), ev)
		}
	}

	for _, svc := range d.batchSvcs {
		svc.Stop()
	}
	for _, svc := range d.storages {
		svc.Stop()
	}
	for _, mm := range d.memMgrs {
		mm.Stop()
	}
	d.registry.Stop()
	return nil
}

// proxyMemoryCapacity resolves a ProxySpec's memory-manager capacity,
// defaulting to its cache disk's full capacity when unset.
func proxyMemoryCapacity(ps config.ProxySpec, disk *model.Disk) int64 {
	if ps.MemoryCapacityBytes > 0 {
		return ps.MemoryCapacityBytes
	}
	return disk.CapacityBytes
}

func proxyOrDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func (d *driver) append(category, kind string, payload any) {
	_ = d.trace.Append(d.clock.Now(), category, kind, payload)
}

// buildCompoundJob turns a JobSpec's action DAG into a live
// *job.CompoundJob, resolving each action's named service to a
// storage.Service or proxy.Proxy. A job with no actions gets a single
// trivial compute action, so submitting it still produces a
// CompoundJobCompleted event.
func (d *driver) buildCompoundJob(js config.JobSpec) (*job.CompoundJob, error) {
	cj := job.NewCompoundJob(js.ID, js.Tolerant)

	if len(js.Actions) == 0 {
		if _, err := cj.AddComputeAction("noop", 0); err != nil {
			return nil, err
		}
		return cj, nil
	}

	for _, as := range js.Actions {
		switch as.Type {
		case "compute":
			if _, err := cj.AddComputeAction(as.Name, as.Flops, as.Parents...); err != nil {
				return nil, err
			}
		case "read":
			target, ok := d.targets[as.Service]
			if !ok {
				return nil, fmt.Errorf("action %q: unknown service %q", as.Name, as.Service)
			}
			loc := model.SimpleLocation(as.Service, as.Mountpoint, as.Path)
			if _, err := cj.AddFileReadAction(as.Name, target, loc, as.Bytes, as.Parents...); err != nil {
				return nil, err
			}
		case "write":
			target, ok := d.targets[as.Service]
			if !ok {
				return nil, fmt.Errorf("action %q: unknown service %q", as.Name, as.Service)
			}
			loc := model.SimpleLocation(as.Service, as.Mountpoint, as.Path)
			file := &model.File{ID: as.FileID, SizeBytes: as.Bytes}
			if _, err := cj.AddFileWriteAction(as.Name, target, loc, file, as.Parents...); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("action %q: unknown type %q", as.Name, as.Type)
		}
	}
	return cj, nil
}
