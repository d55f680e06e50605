package main

import (
	"testing"

	"voxeledit.ai/internal/sim/world"
)

func TestIsLoopbackRemote(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:5000", true},
		{"[::1]:5000", true},
		{"::1", true},
		{"10.0.0.2:5000", false},
		{"example.com:80", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isLoopbackRemote(c.addr); got != c.want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", c.addr, got, c.want)
		}
	}
}

func TestDefaultEnableAdminHTTP(t *testing.T) {
	for env, want := range map[string]bool{"": true, "dev": true, "staging": false, " Production ": false} {
		t.Setenv("DEPLOY_ENV", env)
		if got := defaultEnableAdminHTTP(); got != want {
			t.Fatalf("DEPLOY_ENV=%q: got %v want %v", env, got, want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("VC_TEST_BOOL", "")
	if !envBool("VC_TEST_BOOL", true) {
		t.Fatalf("empty value should use default")
	}
	t.Setenv("VC_TEST_BOOL", "false")
	if envBool("VC_TEST_BOOL", true) {
		t.Fatalf("false not parsed")
	}
	t.Setenv("VC_TEST_BOOL", "nope")
	if envBool("VC_TEST_BOOL", false) {
		t.Fatalf("garbage should use default")
	}
}

type countingLogger struct{ ticks, audits int }

func (c *countingLogger) WriteTick(world.TickLogEntry) error { c.ticks++; return nil }
func (c *countingLogger) WriteAudit(world.AuditEntry) error  { c.audits++; return nil }

func TestMultiLoggersFanOut(t *testing.T) {
	a, b := &countingLogger{}, &countingLogger{}
	tl := multiTickLogger{a: a, b: b}
	al := multiAuditLogger{a: a, b: nil}
	_ = tl.WriteTick(world.TickLogEntry{Tick: 1})
	_ = al.WriteAudit(world.AuditEntry{Tick: 1})
	if a.ticks != 1 || b.ticks != 1 || a.audits != 1 || b.audits != 0 {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
}

func TestOpenRuntimeIndexDisabled(t *testing.T) {
	idx, err := openRuntimeIndex(t.TempDir(), true)
	if err != nil || idx != nil {
		t.Fatalf("disable_db: idx=%v err=%v", idx, err)
	}
	t.Setenv("VC_INDEX_BACKEND", "none")
	idx, err = openRuntimeIndex(t.TempDir(), false)
	if err != nil || idx != nil {
		t.Fatalf("backend none: idx=%v err=%v", idx, err)
	}
	t.Setenv("VC_INDEX_BACKEND", "d1")
	if _, err := openRuntimeIndex(t.TempDir(), false); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}
}
