package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	deviceIDsKey        = "device:ids"
	deviceSeqKey        = "device:seq"
	deviceIDKeyPrefix   = "device:id:"
	deviceAddrKeyPrefix = "device:addr:"

	maxUpdateAttempts = 5
)

var (
	ErrNotFound = errors.New("device: not found")
	ErrInvalid  = errors.New("device: invalid")
)

type Repository interface {
	List(ctx context.Context) ([]*Device, error)
	GetByID(ctx context.Context, id string) (*Device, error)
	Save(ctx context.Context, d *Device) error
	DeleteByID(ctx context.Context, id string) error
	ClearLabel(ctx context.Context, field LabelField, labelID string) (int, error)
}

// LabelField names the device attribute that references a label.
type LabelField string

const (
	TagField  LabelField = "tagId"
	RoomField LabelField = "roomId"
)

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
	}
}

func (r *RedisRepository) idKey(id string) string {
	return deviceIDKeyPrefix + id
}

func (r *RedisRepository) addrKey(address string) string {
	return deviceAddrKeyPrefix + address
}

// List returns devices in creation order. device:ids is a sorted set scored
// by the device:seq counter.
func (r *RedisRepository) List(ctx context.Context) ([]*Device, error) {
	ids, err := r.client.ZRange(ctx, deviceIDsKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Device{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.idKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*Device, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("device: invalid value type")
		}
		var d Device
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return nil, err
		}
		res = append(res, &d)
	}
	return res, nil
}

// GetByID returns nil, nil when the device does not exist.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalid)
	}

	key := r.idKey(id)
	s, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d Device
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *RedisRepository) Save(ctx context.Context, d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalid)
	}
	if d.Address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalid)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	key := r.idKey(d.ID)

	var old Device
	oldAddress := ""
	existing, err := r.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	isNew := err == redis.Nil
	if !isNew {
		if err := json.Unmarshal([]byte(existing), &old); err != nil {
			return err
		}
		oldAddress = old.Address
	}

	b, err := json.Marshal(d)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()

	pipe.Set(ctx, key, b, 0)
	if isNew {
		seq, err := r.client.Incr(ctx, deviceSeqKey).Result()
		if err != nil {
			return err
		}
		pipe.ZAddNX(ctx, deviceIDsKey, redis.Z{
			Score:  float64(seq),
			Member: d.ID,
		})
	}
	pipe.SAdd(ctx, r.addrKey(d.Address), d.ID)

	if oldAddress != "" && oldAddress != d.Address {
		pipe.SRem(ctx, r.addrKey(oldAddress), d.ID)
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRepository) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalid)
	}

	key := r.idKey(id)
	s, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var d Device
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()

	pipe.Del(ctx, key)
	pipe.ZRem(ctx, deviceIDsKey, id)
	if d.Address != "" {
		pipe.SRem(ctx, r.addrKey(d.Address), id)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// ClearLabel blanks field on every device that references labelID and
// returns how many devices were touched. Each device is rewritten under WATCH
// so a concurrent edit is never overwritten with a stale copy.
func (r *RedisRepository) ClearLabel(ctx context.Context, field LabelField, labelID string) (int, error) {
	if labelID == "" {
		return 0, nil
	}

	devices, err := r.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, d := range devices {
		if !matchesLabel(d, field, labelID) {
			continue
		}
		changed, err := r.update(ctx, d.ID, func(cur *Device) bool {
			return clearLabel(cur, field, labelID)
		})
		if err != nil {
			return n, err
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// update applies fn to the stored device inside an optimistic transaction
// and retries when the key changes underneath it. fn reports whether it
// modified the device; a device deleted meanwhile is skipped.
func (r *RedisRepository) update(ctx context.Context, id string, fn func(*Device) bool) (bool, error) {
	key := r.idKey(id)
	changed := false

	txf := func(tx *redis.Tx) error {
		changed = false
		s, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}

		var d Device
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			return err
		}
		if !fn(&d) {
			return nil
		}

		b, err := json.Marshal(&d)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		if err == nil {
			changed = true
		}
		return err
	}

	for range maxUpdateAttempts {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return changed, err
	}
	return false, fmt.Errorf("device: update %s: %w", id, redis.TxFailedErr)
}

func matchesLabel(d *Device, field LabelField, labelID string) bool {
	switch field {
	case TagField:
		return d.TagID == labelID
	case RoomField:
		return d.RoomID == labelID
	}
	return false
}

func clearLabel(d *Device, field LabelField, labelID string) bool {
	switch field {
	case TagField:
		if d.TagID == labelID {
			d.TagID = ""
			return true
		}
	case RoomField:
		if d.RoomID == labelID {
			d.RoomID = ""
			return true
		}
	}
	return false
}
