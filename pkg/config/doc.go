/*
Package config loads a simulation scenario and layers CLI/flag
overrides on top of it, the way the teacher's cmd/warren/main.go
layers cobra persistent flags over log.Init. Unlike the teacher,
which has no file-backed configuration at all (every knob is a CLI
flag or a gRPC request field), a simforge scenario needs a document:
the platform's hosts/disks, which storage/proxy/batch services run
over them, the cache/proxy behavior keys spec §6 names, and the jobs
to submit. spf13/viper reads that document (yaml.v3 under the hood)
and spf13/cobra supplies the handful of flags that make sense at the
command line instead: which scenario file to run, and per-component
log threshold overrides.

# Scenario document

	hosts:
	  - name: host1
	    cores: 8
	    memory_bytes: 17179869184
	    flops_per_core: 1e9
	    disks:
	      - name: disk1
	        mountpoint: /scratch
	        capacity_bytes: 1073741824000
	        read_bandwidth: 500000000
	        write_bandwidth: 500000000

	cache:
	  caching_behavior: LRU          # LRU | NONE
	  uncached_read_method: CopyThenRead  # CopyThenRead | MagicRead | ReadThrough
	  storage_selection_method: round_robin  # external | round_robin | least_loaded

	batch_services:
	  - name: batch1
	    hosts: [host1, host2]
	    properties:
	      BatchSchedulingAlgorithm: bestfit

This only covers the knobs the core actually consumes (spec §6's
explicit Non-goal on platform-XML fidelity means hosts/disks here are
a simplified stand-in, not a platform.xml parser). Links are parsed
but left as opaque values — see LinkSpec's doc comment — since
spec §5 puts bandwidth/latency sharing under the external physics
engine's purview, not the core's.

# CLI layering

cmd/simforge's run subcommand takes the scenario path as a positional
argument, and its root command takes a repeatable `--log` flag of the form
`category.threshold=level`, matching spec §6's
`--log=<category>.threshold=…` filter syntax. ApplyLogFlags parses
each entry and calls pkg/log.SetCategoryThreshold, the same one-
flag-per-override shape the teacher uses for its own
`--log-level`/`--log-json` pair, just generalized to per-component
granularity instead of one global level.
*/
package config
