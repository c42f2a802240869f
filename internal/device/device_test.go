package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rin0913/devicewatch/internal/status"
)

type listRepo struct {
	Repository
	devs []*Device
	err  error
}

func (r *listRepo) List(context.Context) ([]*Device, error) {
	return r.devs, r.err
}

func TestRosterTargets(t *testing.T) {
	repo := &listRepo{devs: []*Device{
		{ID: "a", Address: "10.0.0.1", FriendlyName: "router"},
		{ID: "b", Address: "nas.local:445", CheckMethod: "tcp"},
		{ID: "", Address: "10.0.0.9"},
		{ID: "c"},
		nil,
	}}

	targets, err := NewRoster(repo).Targets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []status.Target{
		{ID: "a", Address: "10.0.0.1"},
		{ID: "b", Address: "nas.local:445", Method: "tcp"},
	}, targets)
}

func TestRosterTargetsError(t *testing.T) {
	boom := errors.New("redis down")
	_, err := NewRoster(&listRepo{err: boom}).Targets(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestClearLabel(t *testing.T) {
	d := &Device{ID: "a", TagID: "t1", RoomID: "r1"}

	assert.False(t, clearLabel(d, TagField, "t2"))
	assert.True(t, clearLabel(d, TagField, "t1"))
	assert.Empty(t, d.TagID)
	assert.Equal(t, "r1", d.RoomID)

	assert.True(t, clearLabel(d, RoomField, "r1"))
	assert.Empty(t, d.RoomID)
}
