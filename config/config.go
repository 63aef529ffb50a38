// Package config carries the informational environment record of
// spec §6: the handful of cluster-wide knobs the data plane's
// constructors need, and nothing else. Host discovery, CLI parsing, and
// thread naming belong to the bootstrap collaborator and are not
// reproduced here.
package config

import "log"

// Config is the fixed-for-a-job configuration record consumed by the
// block pool, channel multiplexer, and reduce tables.
type Config struct {
	NumHosts             int // [REQUIRED] number of hosts in the Group
	WorkersPerHost       int // [REQUIRED] local workers per host
	DefaultBlockSize     int // byte size of a freshly allocated block
	BasePort             int // base TCP port for the Group's peer connections
	ReduceInitialScale   int // initial per-partition slot/bucket count
	ReduceResizeScale    int // multiplier applied to scale on resize
	MaxTableItems        int // triggers a partial flush when exceeded
	MaxPartitionFillRate float64 // triggers a resize when exceeded
}

// NumWorkers returns the total worker count across all hosts.
func (c *Config) NumWorkers() int {
	return c.NumHosts * c.WorkersPerHost
}

// EnsureDefaults fills in zero-valued fields with sensible defaults and
// exits the process via log.Fatal on missing required fields, mirroring the teacher's
// ensureDefaultNodeOptionsValues.
func EnsureDefaults(c *Config) {
	if c.NumHosts == 0 {
		log.Fatal("config.Config.NumHosts must be greater than 0")
	}
	if c.WorkersPerHost == 0 {
		log.Fatal("config.Config.WorkersPerHost must be greater than 0")
	}
	if c.DefaultBlockSize == 0 {
		c.DefaultBlockSize = 2 << 20 // 2 MiB, per spec §3
	}
	if c.BasePort == 0 {
		c.BasePort = 1643
	}
	if c.ReduceInitialScale == 0 {
		c.ReduceInitialScale = 8
	}
	if c.ReduceResizeScale == 0 {
		c.ReduceResizeScale = 2
	}
	if c.MaxTableItems == 0 {
		c.MaxTableItems = 1 << 20
	}
	if c.MaxPartitionFillRate == 0 {
		c.MaxPartitionFillRate = 0.75
	}
}

// Clone makes a copy of a Config, mirroring the teacher's CloneNodeOptions.
func Clone(c *Config) *Config {
	clone := *c
	return &clone
}
