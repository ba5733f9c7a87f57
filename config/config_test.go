// Package config provides the orchestrator CLI surface.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config_test

import (
	"testing"

	"github.com/dcperf/oldisim/config"
)

func TestParseLeaf(t *testing.T) {
	n, err := config.Parse("leaf", []string{"--server", "--port=9000", "--threads=4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Role != config.RoleLeaf {
		t.Fatalf("got role %v, want leaf", n.Role)
	}
	if n.Threads != 4 || n.Port != 9000 {
		t.Fatalf("unexpected node: %+v", n)
	}
}

func TestParseParent(t *testing.T) {
	n, err := config.Parse("parent", []string{"--leaf=l1:11222", "--leaf=l2:11222", "--connections=2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Role != config.RoleParent {
		t.Fatalf("got role %v, want parent", n.Role)
	}
	if len(n.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(n.Children))
	}
}

func TestParseDriver(t *testing.T) {
	n, err := config.Parse("driver", []string{"--parent=p1:11222", "--qps=1000", "--depth=8"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Role != config.RoleDriver {
		t.Fatalf("got role %v, want driver", n.Role)
	}
	if n.QPS != 1000 || n.Depth != 8 {
		t.Fatalf("unexpected node: %+v", n)
	}
}

func TestParseRejectsAmbiguousRole(t *testing.T) {
	if _, err := config.Parse("bad", []string{}); err == nil {
		t.Fatal("expected configuration error when no role flag is given")
	}
	if _, err := config.Parse("bad", []string{"--server", "--leaf=l1:11222"}); err == nil {
		t.Fatal("expected configuration error when --server and --leaf are combined")
	}
}

func TestParseRejectsBadFlags(t *testing.T) {
	if _, err := config.Parse("bad", []string{"--server", "--threads=0"}); err == nil {
		t.Fatal("expected configuration error for --threads=0")
	}
	if _, err := config.Parse("bad", []string{"--server", "--verbose", "--quiet"}); err == nil {
		t.Fatal("expected configuration error for --verbose + --quiet")
	}
}
