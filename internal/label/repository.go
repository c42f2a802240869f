// Package label stores the tags and rooms devices can be grouped by.
package label

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Kind string

const (
	Tag  Kind = "tag"
	Room Kind = "room"
)

var (
	ErrNotFound    = errors.New("label: not found")
	ErrEmptyName   = errors.New("label: empty name")
	ErrUnknownKind = errors.New("label: unknown kind")
)

// ParseKind maps a collection name ("tags", "rooms") to its Kind.
func ParseKind(collection string) (Kind, error) {
	switch collection {
	case "tags":
		return Tag, nil
	case "rooms":
		return Room, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, collection)
}

type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Repository interface {
	List(ctx context.Context, kind Kind) ([]*Label, error)
	Create(ctx context.Context, kind Kind, name string) (*Label, error)
	Delete(ctx context.Context, kind Kind, id string) error
}

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func seqKey(kind Kind) string {
	return string(kind) + ":seq"
}

func idsKey(kind Kind) string {
	return string(kind) + ":ids"
}

func itemKey(kind Kind, id string) string {
	return string(kind) + ":id:" + id
}

func (r *RedisRepository) List(ctx context.Context, kind Kind) ([]*Label, error) {
	ids, err := r.client.ZRange(ctx, idsKey(kind), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Label{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(kind, id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*Label, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var l Label
		if err := json.Unmarshal([]byte(s), &l); err != nil {
			return nil, err
		}
		res = append(res, &l)
	}
	return res, nil
}

func (r *RedisRepository) Create(ctx context.Context, kind Kind, name string) (*Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	l := &Label{ID: uuid.NewString(), Name: name}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}

	// insertion order survives labels created within the same clock tick
	seq, err := r.client.Incr(ctx, seqKey(kind)).Result()
	if err != nil {
		return nil, err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, itemKey(kind, l.ID), b, 0)
	pipe.ZAdd(ctx, idsKey(kind), redis.Z{
		Score:  float64(seq),
		Member: l.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *RedisRepository) Delete(ctx context.Context, kind Kind, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, itemKey(kind, id))
	pipe.ZRem(ctx, idsKey(kind), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}
