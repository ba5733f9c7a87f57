// Package config parses the orchestrator CLI surface (spec §6) into a
// Node snapshot and applies it to the ambient packages (cmn.Rom,
// cmn/nlog) at startup.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dcperf/oldisim/cmn"
	"github.com/dcperf/oldisim/cmn/nlog"
)

// Role identifies which of the three node roles a process runs as.
type Role int

const (
	RoleLeaf Role = iota
	RoleParent
	RoleDriver
)

func (r Role) String() string {
	switch r {
	case RoleLeaf:
		return "leaf"
	case RoleParent:
		return "parent"
	case RoleDriver:
		return "driver"
	default:
		return "unknown"
	}
}

const DefaultPort = 11222

// endpoints is a repeatable "host:port" flag value, collected in flag
// order: --leaf for a parent's children, --parent for a driver's.
type endpoints []string

func (e *endpoints) String() string { return strings.Join(*e, ",") }
func (e *endpoints) Set(v string) error {
	if v == "" {
		return errors.New("empty endpoint")
	}
	*e = append(*e, v)
	return nil
}

// Node is the fully parsed, validated configuration for one process.
// Every orchestrator (leaf, parent, driver) is constructed from one.
type Node struct {
	Role Role

	Threads      int
	Port         int
	MonitorPort  int // 0 disables the monitoring HTTP server
	Connections  int // per-child connection count (parent, driver)
	Depth        int // per-connection outstanding-request cap
	Children     []string
	QPS          float64 // driver target rate; 0 means uncapped (closed loop, no rate control)
	Affinity     bool
	LoadBalance  bool // leaf work-stealing; false => round-robin only
	Verbose      bool
	Quiet        bool
	ReplyTimeout time.Duration
	Keepalive    time.Duration
}

// Parse parses args (normally os.Args[1:]) into a validated Node.
// Role is inferred from which endpoint flag carries values: --leaf
// (repeatable) names a parent's children, --parent (repeatable) names a
// driver's; --server (boolean) selects the leaf role, which takes none.
// Configuration errors are returned rather than exiting so that callers
// (tests, cmd/*) control the process's exit path.
func Parse(progname string, args []string) (*Node, error) {
	fs := flag.NewFlagSet(progname, flag.ContinueOnError)

	var (
		asServer      bool
		leafChildren  endpoints
		parentTargets endpoints
	)

	threads := fs.Int("threads", 1, "number of reactor threads")
	port := fs.Int("port", DefaultPort, "listening port (leaf, parent)")
	monitorPort := fs.Int("monitor_port", 0, "monitoring HTTP port, 0 disables it")
	connections := fs.Int("connections", 1, "connections per child")
	depth := fs.Int("depth", 1, "max outstanding requests per connection")
	qps := fs.Float64("qps", 0, "driver target queries/sec, 0 for uncapped closed-loop")
	affinity := fs.Bool("affinity", false, "pin reactor threads to CPUs")
	noAffinity := fs.Bool("noaffinity", false, "disable CPU pinning (overrides --affinity)")
	noLoadBalance := fs.Bool("noloadbalance", false, "disable leaf work-stealing (round-robin only)")
	verbose := fs.Bool("verbose", false, "verbose logging")
	quiet := fs.Bool("quiet", false, "suppress informational logging")
	replyTimeout := fs.Duration("reply_timeout", 500*time.Millisecond, "per-request fanout deadline")
	keepalive := fs.Duration("keepalive", 30*time.Second, "connection idle timeout")

	fs.BoolVar(&asServer, "server", false, "run as a leaf (request-serving) node")
	fs.Var(&leafChildren, "leaf", "leaf child endpoint host:port (repeatable, implies parent role)")
	fs.Var(&parentTargets, "parent", "parent endpoint host:port (repeatable, implies driver role)")

	nlog.InitFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "configuration error")
	}

	n := &Node{
		Threads:      *threads,
		Port:         *port,
		MonitorPort:  *monitorPort,
		Connections:  *connections,
		Depth:        *depth,
		QPS:          *qps,
		Affinity:     *affinity && !*noAffinity,
		LoadBalance:  !*noLoadBalance,
		Verbose:      *verbose,
		Quiet:        *quiet,
		ReplyTimeout: *replyTimeout,
		Keepalive:    *keepalive,
	}

	switch {
	case asServer && len(leafChildren) == 0 && len(parentTargets) == 0:
		n.Role = RoleLeaf
	case len(leafChildren) > 0 && len(parentTargets) == 0:
		n.Role = RoleParent
		n.Children = leafChildren
	case len(parentTargets) > 0 && len(leafChildren) == 0:
		n.Role = RoleDriver
		n.Children = parentTargets
	default:
		return nil, errors.New("configuration error: specify exactly one of --server, --leaf (one or more), --parent (one or more)")
	}

	if err := n.validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) validate() error {
	if n.Threads < 1 {
		return errors.New("configuration error: --threads must be >= 1")
	}
	if n.Role != RoleDriver && (n.Port <= 0 || n.Port > 65535) {
		return errors.Errorf("configuration error: invalid --port %d", n.Port)
	}
	if n.Connections < 1 {
		return errors.New("configuration error: --connections must be >= 1")
	}
	if n.Depth < 1 {
		return errors.New("configuration error: --depth must be >= 1")
	}
	if n.QPS < 0 {
		return errors.New("configuration error: --qps must be >= 0")
	}
	if n.Verbose && n.Quiet {
		return errors.New("configuration error: --verbose and --quiet are mutually exclusive")
	}
	return nil
}

// Apply pushes the parsed config into the ambient packages: cmn.Rom's
// hot-path cache (including the verbosity level FastV reads) and nlog's
// title (the role name, suffixed " (quiet)" under --quiet).
func (n *Node) Apply() {
	verbosity := 0
	if n.Verbose {
		verbosity = 2
	}
	cmn.Rom.Set(n.ReplyTimeout, n.Keepalive, verbosity, false)
	if n.Quiet {
		nlog.SetTitle(fmt.Sprintf("%s (quiet)", n.Role))
	} else {
		nlog.SetTitle(n.Role.String())
	}
}
