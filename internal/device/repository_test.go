package device

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (*RedisRepository, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client), mr, client
}

func TestRedisRepositoryListKeepsCreationOrder(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	ctx := context.Background()

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, name := range []string{"router", "nas", "printer"} {
		require.NoError(t, repo.Save(ctx, &Device{Address: name + ".local", FriendlyName: name}))
	}

	// saving again must not move a device to the back
	first, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, first, 3)
	first[0].Notes = "edited"
	require.NoError(t, repo.Save(ctx, first[0]))

	list, err = repo.List(ctx)
	require.NoError(t, err)
	var names []string
	for _, d := range list {
		names = append(names, d.FriendlyName)
	}
	assert.Equal(t, []string{"router", "nas", "printer"}, names)
	assert.Equal(t, "edited", list[0].Notes)
}

func TestRedisRepositorySaveAssignsIDAndIndexesAddress(t *testing.T) {
	repo, mr, _ := newTestRepository(t)
	ctx := context.Background()

	d := &Device{Address: "10.0.0.1", FriendlyName: "router"}
	require.NoError(t, repo.Save(ctx, d))
	require.NotEmpty(t, d.ID)

	ok, err := mr.SIsMember("device:addr:10.0.0.1", d.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	d.Address = "10.0.0.2"
	require.NoError(t, repo.Save(ctx, d))

	ok, _ = mr.SIsMember("device:addr:10.0.0.1", d.ID)
	assert.False(t, ok)
	ok, err = mr.SIsMember("device:addr:10.0.0.2", d.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10.0.0.2", got.Address)

	assert.ErrorIs(t, repo.Save(ctx, &Device{FriendlyName: "no address"}), ErrInvalid)
}

func TestRedisRepositoryGetMissing(t *testing.T) {
	repo, _, _ := newTestRepository(t)

	d, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = repo.GetByID(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRedisRepositoryDelete(t *testing.T) {
	repo, mr, _ := newTestRepository(t)
	ctx := context.Background()

	d := &Device{ID: "a", Address: "10.0.0.1"}
	require.NoError(t, repo.Save(ctx, d))
	require.NoError(t, repo.DeleteByID(ctx, "a"))

	assert.False(t, mr.Exists("device:id:a"))
	ok, _ := mr.SIsMember("device:addr:10.0.0.1", "a")
	assert.False(t, ok)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, repo.DeleteByID(ctx, "a"), ErrNotFound)
}

func TestRedisRepositoryClearLabel(t *testing.T) {
	repo, _, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &Device{ID: "a", Address: "x", TagID: "t1", RoomID: "r1"}))
	require.NoError(t, repo.Save(ctx, &Device{ID: "b", Address: "y", TagID: "t1"}))
	require.NoError(t, repo.Save(ctx, &Device{ID: "c", Address: "z", TagID: "t2", RoomID: "r1"}))

	n, err := repo.ClearLabel(ctx, TagField, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, _ := repo.GetByID(ctx, "a")
	b, _ := repo.GetByID(ctx, "b")
	c, _ := repo.GetByID(ctx, "c")
	assert.Empty(t, a.TagID)
	assert.Equal(t, "r1", a.RoomID)
	assert.Empty(t, b.TagID)
	assert.Equal(t, "t2", c.TagID)

	n, err = repo.ClearLabel(ctx, RoomField, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.ClearLabel(ctx, RoomField, "r1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisRepositoryUpdateKeepsConcurrentEdit(t *testing.T) {
	repo, _, client := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &Device{ID: "a", Address: "x", TagID: "t1"}))

	calls := 0
	changed, err := repo.update(ctx, "a", func(d *Device) bool {
		calls++
		if calls == 1 {
			// another writer edits the device between our read and write
			require.NoError(t, client.Set(ctx, "device:id:a", `{"id":"a","address":"x","tagId":"t1","notes":"rack 4"}`, 0).Err())
		}
		return clearLabel(d, TagField, "t1")
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, calls)

	d, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, d.TagID)
	assert.Equal(t, "rack 4", d.Notes)
}

func TestRedisRepositoryUpdateSkipsDeletedDevice(t *testing.T) {
	repo, _, _ := newTestRepository(t)

	changed, err := repo.update(context.Background(), "gone", func(*Device) bool { return true })
	require.NoError(t, err)
	assert.False(t, changed)
}
