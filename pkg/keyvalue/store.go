/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package keyvalue

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/locking"
	"github.com/mrocklin/skein/pkg/log"
	"github.com/mrocklin/skein/pkg/metrics"
)

// Store is the watchable key-value map embedded in the application
// master. It is the rendezvous point between dependent services: blocked
// readers are parked on per-key waiter sets and drained by the set that
// makes the key appear.
//
// The store lives in its own lock domain, independent of the master lock.
// Entries survive for the lifetime of the master only. No size limit is
// imposed; payloads are expected to be small coordination values.
type Store struct {
	locking.RWMutex
	data    map[string]string
	waiters map[string][]chan string
}

func NewStore() *Store {
	return &Store{
		data:    make(map[string]string),
		waiters: make(map[string][]chan string),
	}
}

func validateKey(key string) error {
	if key == "" {
		return common.InvalidArgument("key must be non-empty")
	}
	if strings.IndexByte(key, 0) >= 0 {
		return common.InvalidArgument("key must not contain null bytes")
	}
	return nil
}

// Get returns the value for key. With wait set and the key absent the
// call blocks until a set makes a value appear or the context is
// cancelled; without wait an absent key fails with NOT_FOUND.
func (s *Store) Get(ctx context.Context, key string, wait bool) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	metrics.GetMasterMetrics().IncKVOp("get")

	s.Lock()
	if value, ok := s.data[key]; ok {
		s.Unlock()
		return value, nil
	}
	if !wait {
		s.Unlock()
		return "", common.NotFound("key %q is not set", key)
	}
	// one-shot waiter, buffered so the draining set never blocks
	ch := make(chan string, 1)
	s.waiters[key] = append(s.waiters[key], ch)
	s.Unlock()

	select {
	case value := <-ch:
		return value, nil
	case <-ctx.Done():
		s.removeWaiter(key, ch)
		// a set may have delivered while we were cancelling
		select {
		case value := <-ch:
			return value, nil
		default:
		}
		return "", common.Cancelled("wait for key %q cancelled: %v", key, ctx.Err())
	}
}

// Set unconditionally upserts the key and wakes every reader blocked on
// its appearance, delivering the new value.
func (s *Store) Set(key string, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.Lock()
	s.data[key] = value
	woken := s.waiters[key]
	delete(s.waiters, key)
	size := len(s.data)
	s.Unlock()

	for _, ch := range woken {
		ch <- value
	}
	if len(woken) > 0 {
		log.Logger().Debug("key set, waiters woken",
			zap.String("key", key),
			zap.Int("waiters", len(woken)))
	}
	mm := metrics.GetMasterMetrics()
	mm.IncKVOp("set")
	mm.SetKVEntries(size)
	return nil
}

// Delete removes the key if present and reports whether it was. Waiters
// are not woken: a blocking get waits for a value to be present, so a
// delete followed by a set is a single appearance to them.
func (s *Store) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	s.Lock()
	_, ok := s.data[key]
	delete(s.data, key)
	size := len(s.data)
	s.Unlock()

	mm := metrics.GetMasterMetrics()
	mm.IncKVOp("delete")
	mm.SetKVEntries(size)
	return ok, nil
}

// Snapshot returns a copy of all current key-value pairs.
func (s *Store) Snapshot() map[string]string {
	s.RLock()
	defer s.RUnlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Size returns the number of entries.
func (s *Store) Size() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.data)
}

// NumWaiters returns the number of readers blocked on key. Visible for tests.
func (s *Store) NumWaiters(key string) int {
	s.RLock()
	defer s.RUnlock()
	return len(s.waiters[key])
}

func (s *Store) removeWaiter(key string, ch chan string) {
	s.Lock()
	defer s.Unlock()
	waiters := s.waiters[key]
	for i, w := range waiters {
		if w == ch {
			s.waiters[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(s.waiters[key]) == 0 {
		delete(s.waiters, key)
	}
}
