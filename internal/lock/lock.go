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
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock is already held")

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// Locker is a single-key Redis lock owned by whoever knows value.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

// NewLocker creates a lock on key. value identifies the holder and must be
// unique per acquisition; Unlock only deletes the key while it still holds value.
func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

// Lock takes the key with SETNX for timeout. It does not wait: a held key
// fails immediately with ErrLockHeld.
//
// Parameters:
// - ctx context.Context: The context for the Redis call.
// - timeout time.Duration: How long the lock lives if it is never released.
//
// Returns:
// - error: ErrLockHeld if another holder owns the key, or the Redis error.
func (l *Locker) Lock(ctx context.Context, timeout time.Duration) error {
	success, err := l.client.SetNX(ctx, l.key, l.value, timeout).Result()
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("%w: key %s", ErrLockHeld, l.key)
	}
	return nil
}

// Unlock releases the key if this locker still holds it.
func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("unlock failed, either lock expired or you're not the lock holder for key %s", l.key)
	}
	return nil
}

// InvoiceLocks serializes work on a single payment invoice across processes.
type InvoiceLocks struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewInvoiceLocks(client redis.UniversalClient, ttl time.Duration) *InvoiceLocks {
	return &InvoiceLocks{client: client, ttl: ttl}
}

// Acquire takes the lock for invoiceID and returns its release function.
// It fails with ErrLockHeld without waiting when another process holds it.
func (i *InvoiceLocks) Acquire(ctx context.Context, invoiceID string) (func(context.Context) error, error) {
	locker := NewLocker(i.client, InvoiceKey(invoiceID), uuid.New().String())
	if err := locker.Lock(ctx, i.ttl); err != nil {
		return nil, err
	}
	return locker.Unlock, nil
}

func InvoiceKey(invoiceID string) string {
	return "regpay:callback:" + invoiceID
}
