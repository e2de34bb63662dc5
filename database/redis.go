/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	redlock "github.com/blnkfinance/economy/internal/lock"
)

const (
	redisDocumentPrefix = "economy:doc:"
	redisLockPrefix     = "economy:lock:"

	writeLockTimeout = 10 * time.Second
	writeLockWait    = 3 * time.Second
)

// RedisStore keeps documents as plain string keys. Writes take a per-document
// lock so two server processes sharing a Redis never interleave a save.
type RedisStore struct {
	client redis.UniversalClient
	owner  string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, owner: uuid.NewString()}
}

func (r *RedisStore) Client() redis.UniversalClient {
	return r.client
}

func (r *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, redisDocumentPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *RedisStore) Put(ctx context.Context, name string, data []byte) error {
	locker := redlock.NewLocker(r.client, redisLockPrefix+name, r.owner)
	if err := locker.WaitLock(ctx, writeLockTimeout, writeLockWait); err != nil {
		return errors.Wrap(err, "acquire document lock")
	}
	defer func() {
		_ = locker.Unlock(context.Background())
	}()

	return r.client.Set(ctx, redisDocumentPrefix+name, data, 0).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
