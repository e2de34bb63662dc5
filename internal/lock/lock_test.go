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

package redlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Lock_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "economy:doc:accounts.json", "holder-a")

	mock.ExpectSetNX("economy:doc:accounts.json", "holder-a", 5*time.Second).SetVal(true)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Lock_Held(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "economy:doc:accounts.json", "holder-a")

	mock.ExpectSetNX("economy:doc:accounts.json", "holder-a", 5*time.Second).SetVal(false)

	err := locker.Lock(context.Background(), 5*time.Second)
	assert.True(t, errors.Is(err, ErrLockHeld))
	assert.EqualError(t, err, "lock is already held: economy:doc:accounts.json")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_Unlock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "economy:tick-leader", "node-1")

	mock.ExpectEval(unlockScript, []string{"economy:tick-leader"}, "node-1").SetVal(int64(1))
	assert.NoError(t, locker.Unlock(context.Background()))

	mock.ExpectEval(unlockScript, []string{"economy:tick-leader"}, "node-1").SetVal(int64(0))
	err := locker.Unlock(context.Background())
	assert.EqualError(t, err, "unlock failed, either lock expired or you're not the lock holder for key economy:tick-leader")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_ExtendLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "economy:tick-leader", "node-1")

	mock.ExpectEval(extendScript, []string{"economy:tick-leader"}, "node-1", "5000").SetVal(int64(1))
	assert.NoError(t, locker.ExtendLock(context.Background(), 5*time.Second))

	mock.ExpectEval(extendScript, []string{"economy:tick-leader"}, "node-1", "5000").SetVal(int64(0))
	err := locker.ExtendLock(context.Background(), 5*time.Second)
	assert.EqualError(t, err, "lock extension failed for key economy:tick-leader, either lock expired or you're not the holder")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_WaitLock_Contention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	first := NewLocker(client, "economy:doc:loans.json", "first")
	second := NewLocker(client, "economy:doc:loans.json", "second")

	require.NoError(t, first.Lock(ctx, 5*time.Second))

	err := second.WaitLock(ctx, 5*time.Second, 100*time.Millisecond)
	assert.EqualError(t, err, "failed to acquire lock for key economy:doc:loans.json within the wait timeout")

	require.NoError(t, first.Unlock(ctx))
	assert.NoError(t, second.WaitLock(ctx, 5*time.Second, time.Second))

	// the first holder can no longer release the second holder's lock
	assert.Error(t, first.Unlock(ctx))
	assert.NoError(t, second.Unlock(ctx))
}

func TestLocker_WaitLock_ConnectionError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	locker := NewLocker(db, "economy:doc:loans.json", "first")

	mock.ExpectSetNX("economy:doc:loans.json", "first", 5*time.Second).SetErr(errors.New("connection refused"))

	err := locker.WaitLock(context.Background(), 5*time.Second, time.Second)
	assert.EqualError(t, err, "connection refused")
}
