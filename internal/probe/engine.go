package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Rin0913/devicewatch/internal/status"
)

const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"

	DefaultTimeout = 2 * time.Second
)

var ErrUnknownMethod = errors.New("probe: unknown method")

// CheckerFunc returns nil when address answered before ctx expired.
type CheckerFunc func(ctx context.Context, address string) error

// Engine dispatches probes to named checkers. Probe never surfaces an error:
// anything that goes wrong reads as unreachable.
type Engine struct {
	mu            sync.RWMutex
	checkers      map[string]CheckerFunc
	defaultMethod string
	log           zerolog.Logger
}

func NewEngine(defaultMethod string, log zerolog.Logger) *Engine {
	if defaultMethod == "" {
		defaultMethod = MethodICMP
	}
	e := &Engine{
		checkers:      make(map[string]CheckerFunc),
		defaultMethod: defaultMethod,
		log:           log,
	}
	e.RegisterChecker(MethodICMP, icmpChecker)
	e.RegisterChecker(MethodTCP, tcpChecker)
	return e
}

func (e *Engine) RegisterChecker(method string, fn CheckerFunc) {
	if method == "" || fn == nil {
		return
	}
	e.mu.Lock()
	e.checkers[method] = fn
	e.mu.Unlock()
}

// HasChecker reports whether method can be probed. The empty method means
// the default one.
func (e *Engine) HasChecker(method string) bool {
	return e.getChecker(method) != nil
}

func (e *Engine) getChecker(method string) CheckerFunc {
	if method == "" {
		method = e.defaultMethod
	}
	e.mu.RLock()
	fn := e.checkers[method]
	e.mu.RUnlock()
	return fn
}

// Check runs the checker for target and returns its raw error.
func (e *Engine) Check(ctx context.Context, target status.Target, timeout time.Duration) error {
	fn := e.getChecker(target.Method)
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, target.Method)
	}
	if target.Address == "" {
		return fmt.Errorf("probe: empty address")
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return safeCall(jobCtx, fn, target.Address)
}

// Probe reports whether target answered within timeout.
func (e *Engine) Probe(ctx context.Context, target status.Target, timeout time.Duration) bool {
	err := e.Check(ctx, target, timeout)
	if err != nil {
		e.log.Debug().
			Str("device_id", target.ID).
			Str("address", target.Address).
			Err(err).
			Msg("probe negative")
		return false
	}
	return true
}

func safeCall(ctx context.Context, fn CheckerFunc, address string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe: checker panic: %v", r)
		}
	}()
	return fn(ctx, address)
}

func tcpChecker(ctx context.Context, address string) error {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}
