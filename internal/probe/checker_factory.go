package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Rin0913/devicewatch/internal/config"
)

const commandWaitDelay = 500 * time.Millisecond

// LoadCheckers registers the command checkers declared in config.
func (e *Engine) LoadCheckers(entries map[string]config.CheckerEntry) {
	for name, entry := range entries {
		switch entry.Type {
		case "command":
			e.MakeCommandChecker(name, entry.Command)
			e.log.Info().Str("checker", name).Str("command", entry.Command).Msg("loaded command checker")
		default:
			e.log.Warn().Str("checker", name).Str("type", entry.Type).Msg("skipping checker of unknown type")
		}
	}
}

// MakeCommandChecker registers a checker that runs command with the address
// appended as a single argument and treats exit status 0 as reachable. The
// address is passed as $1, never spliced into the script.
func (e *Engine) MakeCommandChecker(name string, command string) {
	fn := func(ctx context.Context, address string) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command+` "$1"`, "sh", address)
		// children of sh may outlive it and hold stderr open
		cmd.WaitDelay = commandWaitDelay

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%s: %w: %s", name, err, msg)
			}
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}

	e.RegisterChecker(name, fn)
}
