package status

import (
	"encoding/json"
	"time"
)

type DeviceID = string

type Status int

const (
	Checking Status = iota
	Online
	Offline
)

func (s Status) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "checking"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FromReachable maps a probe outcome to a status.
func FromReachable(reachable bool) Status {
	if reachable {
		return Online
	}
	return Offline
}

// Target is what the scheduler needs to probe one device during a cycle.
type Target struct {
	ID      DeviceID
	Address string
	Method  string
}

// Record is the last known status of a device. ChangedAt is the time of the
// last transition, not of the last probe.
type Record struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changedAt"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status    string `json:"status"`
		ChangedAt string `json:"changedAt"`
	}{
		Status:    r.Status.String(),
		ChangedAt: r.ChangedAt.UTC().Format(time.RFC3339Nano),
	})
}
