// internal/service/notification/directory.go
package notification

import (
	"context"
	"errors"
	"fmt"

	xerrors "soko-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisDirectory reads account email addresses from the projection the
// accounts service maintains in Redis under soko:account:email:<id>.
type RedisDirectory struct {
	rdb *redis.Client
}

func NewRedisDirectory(rdb *redis.Client) *RedisDirectory {
	return &RedisDirectory{rdb: rdb}
}

func (d *RedisDirectory) EmailForAccount(ctx context.Context, accountID int64) (string, error) {
	email, err := d.rdb.Get(ctx, fmt.Sprintf("soko:account:email:%d", accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", xerrors.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return email, nil
}
