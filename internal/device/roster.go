package device

import (
	"context"

	"github.com/Rin0913/devicewatch/internal/status"
)

// Roster exposes a Repository as the monitor's roster provider.
type Roster struct {
	repo Repository
}

func NewRoster(repo Repository) *Roster {
	return &Roster{repo: repo}
}

// Targets reads the current devices, skipping entries without an id or
// address since they cannot be probed.
func (r *Roster) Targets(ctx context.Context) ([]status.Target, error) {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]status.Target, 0, len(devices))
	for _, d := range devices {
		if d == nil || d.ID == "" || d.Address == "" {
			continue
		}
		out = append(out, d.Target())
	}
	return out, nil
}
