package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rin0913/devicewatch/internal/config"
	"github.com/Rin0913/devicewatch/internal/logger"
	"github.com/Rin0913/devicewatch/internal/status"
)

func newTestEngine() *Engine {
	return NewEngine(MethodTCP, logger.NewTestLogger())
}

func TestTCPProbeReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	e := newTestEngine()
	ok := e.Probe(context.Background(), status.Target{ID: "a", Address: ln.Addr().String()}, time.Second)
	assert.True(t, ok)
}

func TestTCPProbeRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	e := newTestEngine()
	assert.False(t, e.Probe(context.Background(), status.Target{ID: "a", Address: addr}, time.Second))
}

func TestProbeFailsSafe(t *testing.T) {
	e := newTestEngine()
	e.RegisterChecker("boom", func(context.Context, string) error { panic("kaboom") })

	tests := []struct {
		name   string
		target status.Target
	}{
		{"malformed address", status.Target{ID: "a", Address: "not an address"}},
		{"empty address", status.Target{ID: "a"}},
		{"unknown method", status.Target{ID: "a", Address: "127.0.0.1:1", Method: "carrier-pigeon"}},
		{"panicking checker", status.Target{ID: "a", Address: "127.0.0.1", Method: "boom"}},
		{"unresolvable host", status.Target{ID: "a", Address: "does-not-exist.invalid", Method: MethodICMP}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, e.Probe(context.Background(), tt.target, 200*time.Millisecond))
		})
	}
}

func TestCheckUnknownMethod(t *testing.T) {
	e := newTestEngine()
	err := e.Check(context.Background(), status.Target{Address: "x", Method: "nope"}, time.Second)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestProbeHonoursTimeout(t *testing.T) {
	e := newTestEngine()
	e.RegisterChecker("slow", func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	ok := e.Probe(context.Background(), status.Target{ID: "a", Address: "x", Method: "slow"}, 50*time.Millisecond)

	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDefaultMethodUsedWhenTargetHasNone(t *testing.T) {
	e := NewEngine("fake", logger.NewTestLogger())
	called := false
	e.RegisterChecker("fake", func(context.Context, string) error {
		called = true
		return nil
	})

	assert.True(t, e.Probe(context.Background(), status.Target{ID: "a", Address: "x"}, time.Second))
	assert.True(t, called)
}

func TestCommandChecker(t *testing.T) {
	e := newTestEngine()
	e.LoadCheckers(map[string]config.CheckerEntry{
		"ok":   {Type: "command", Command: "true"},
		"fail": {Type: "command", Command: "false"},
	})

	assert.True(t, e.Probe(context.Background(), status.Target{ID: "a", Address: "10.0.0.1", Method: "ok"}, time.Second))
	assert.False(t, e.Probe(context.Background(), status.Target{ID: "a", Address: "10.0.0.1", Method: "fail"}, time.Second))

	err := e.Check(context.Background(), status.Target{Address: "10.0.0.1", Method: "fail"}, time.Second)
	var exitErr interface{ ExitCode() int }
	assert.True(t, errors.As(err, &exitErr))
}

func TestCommandCheckerPassesAddressAsArgument(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "marker")
	out := filepath.Join(t.TempDir(), "argv")

	e := newTestEngine()
	e.MakeCommandChecker("echo", `printf '%s' >`+out)

	address := "127.0.0.1; touch " + marker
	require.NoError(t, e.Check(context.Background(), status.Target{Address: address, Method: "echo"}, time.Second))

	_, err := os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "address must not run as shell")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, address, string(got))
}

func TestHasChecker(t *testing.T) {
	e := newTestEngine()
	e.MakeCommandChecker("cmd_ping", "true")

	assert.True(t, e.HasChecker(""))
	assert.True(t, e.HasChecker(MethodICMP))
	assert.True(t, e.HasChecker(MethodTCP))
	assert.True(t, e.HasChecker("cmd_ping"))
	assert.False(t, e.HasChecker("icpm"))

	e = NewEngine("snmp", logger.NewTestLogger())
	assert.False(t, e.HasChecker(""))
}

func TestResolveIPLiterals(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"10.0.0.1", "10.0.0.1"},
		{"10.0.0.1:22", "10.0.0.1"},
		{"::1", "::1"},
		{"[::1]", "::1"},
		{"[::1]:22", "::1"},
		{"[fe80::1]", "fe80::1"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			ip, err := resolveIP(context.Background(), tt.address)
			require.NoError(t, err)
			assert.True(t, ip.Equal(net.ParseIP(tt.want)), "got %s", ip)
		})
	}
}
