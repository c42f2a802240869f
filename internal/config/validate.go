package config

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalid = errors.New("invalid config")

func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalid)
	}

	m := cfg.Monitor
	if m.Interval <= 0 {
		return fmt.Errorf("%w: monitor.interval must be > 0", ErrInvalid)
	}
	if m.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: monitor.probe_timeout must be > 0", ErrInvalid)
	}
	// probes must ordinarily finish before the next cycle is due
	if m.ProbeTimeout >= m.Interval {
		return fmt.Errorf("%w: monitor.probe_timeout (%s) must be shorter than monitor.interval (%s)",
			ErrInvalid, m.ProbeTimeout, m.Interval)
	}
	if m.MaxConcurrency < 1 {
		return fmt.Errorf("%w: monitor.max_concurrency must be >= 1", ErrInvalid)
	}
	if m.DefaultMethod == "" {
		return fmt.Errorf("%w: monitor.default_method is required", ErrInvalid)
	}
	if !cfg.HasMethod(m.DefaultMethod) {
		return fmt.Errorf("%w: monitor.default_method %q is neither built in nor a configured checker",
			ErrInvalid, m.DefaultMethod)
	}

	for name, c := range cfg.Checkers {
		switch c.Type {
		case "command":
			if c.Command == "" {
				return fmt.Errorf("%w: checker %q: command is required", ErrInvalid, name)
			}
		default:
			return fmt.Errorf("%w: checker %q: unsupported type %q", ErrInvalid, name, c.Type)
		}
	}

	return nil
}

// BuiltinMethods are the checkers every probe engine provides.
var BuiltinMethods = []string{"icmp", "tcp"}

// HasMethod reports whether method names a built-in or configured checker.
func (c *Config) HasMethod(method string) bool {
	if slices.Contains(BuiltinMethods, method) {
		return true
	}
	_, ok := c.Checkers[method]
	return ok
}
