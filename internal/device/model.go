package device

import "github.com/Rin0913/devicewatch/internal/status"

type Device struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	FriendlyName string `json:"friendlyName"`
	TagID        string `json:"tagId"`
	RoomID       string `json:"roomId"`
	Notes        string `json:"notes"`
	CheckMethod  string `json:"checkMethod,omitempty"`
}

// Target is the slice of d the liveness monitor works with.
func (d *Device) Target() status.Target {
	return status.Target{
		ID:      d.ID,
		Address: d.Address,
		Method:  d.CheckMethod,
	}
}
