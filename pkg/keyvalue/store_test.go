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
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/mrocklin/skein/pkg/common"
)

func TestSetGet(t *testing.T) {
	store := NewStore()
	assert.NilError(t, store.Set("k", "v"))
	value, err := store.Get(context.Background(), "k", false)
	assert.NilError(t, err)
	assert.Equal(t, value, "v")

	// upsert overwrites
	assert.NilError(t, store.Set("k", "v2"))
	value, err = store.Get(context.Background(), "k", false)
	assert.NilError(t, err)
	assert.Equal(t, value, "v2")
}

func TestGetMissing(t *testing.T) {
	store := NewStore()
	_, err := store.Get(context.Background(), "nope", false)
	assert.Assert(t, err != nil)
	assert.Equal(t, common.CodeOf(err), common.CodeNotFound)
}

func TestSetDeleteGet(t *testing.T) {
	store := NewStore()
	assert.NilError(t, store.Set("k", "v"))
	existed, err := store.Delete("k")
	assert.NilError(t, err)
	assert.Assert(t, existed)
	_, err = store.Get(context.Background(), "k", false)
	assert.Equal(t, common.CodeOf(err), common.CodeNotFound)

	// delete is idempotent
	existed, err = store.Delete("k")
	assert.NilError(t, err)
	assert.Assert(t, !existed)
}

func TestKeyValidation(t *testing.T) {
	store := NewStore()
	assert.ErrorContains(t, store.Set("", "v"), "non-empty")
	assert.ErrorContains(t, store.Set("a\x00b", "v"), "null bytes")
	_, err := store.Get(context.Background(), "", true)
	assert.ErrorContains(t, err, "non-empty")
}

func TestGetWaitWokenBySet(t *testing.T) {
	store := NewStore()
	result := make(chan string, 1)
	go func() {
		value, err := store.Get(context.Background(), "k", true)
		if err != nil {
			result <- "error: " + err.Error()
			return
		}
		result <- value
	}()

	assert.NilError(t, common.WaitFor(time.Millisecond, time.Second, func() bool {
		return store.NumWaiters("k") == 1
	}))
	assert.NilError(t, store.Set("k", "v1"))

	select {
	case value := <-result:
		assert.Equal(t, value, "v1")
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by set")
	}

	// a fresh waiting get now returns immediately
	value, err := store.Get(context.Background(), "k", true)
	assert.NilError(t, err)
	assert.Equal(t, value, "v1")
}

func TestDeleteDoesNotWakeWaiters(t *testing.T) {
	store := NewStore()
	assert.NilError(t, store.Set("k", "v"))
	existed, err := store.Delete("k")
	assert.NilError(t, err)
	assert.Assert(t, existed)

	result := make(chan string, 1)
	go func() {
		value, _ := store.Get(context.Background(), "k", true)
		result <- value
	}()
	assert.NilError(t, common.WaitFor(time.Millisecond, time.Second, func() bool {
		return store.NumWaiters("k") == 1
	}))

	// another delete on the absent key changes nothing for the waiter
	_, err = store.Delete("k")
	assert.NilError(t, err)
	select {
	case <-result:
		t.Fatal("delete must not wake waiters")
	case <-time.After(50 * time.Millisecond):
	}

	// the next set is an appearance and wakes it
	assert.NilError(t, store.Set("k", "v2"))
	select {
	case value := <-result:
		assert.Equal(t, value, "v2")
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken after delete then set")
	}
}

func TestMultipleWaitersAllWoken(t *testing.T) {
	store := NewStore()
	const waiters = 8
	var wg sync.WaitGroup
	results := make(chan string, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := store.Get(context.Background(), "k", true)
			assert.Check(t, err == nil)
			results <- value
		}()
	}
	assert.NilError(t, common.WaitFor(time.Millisecond, time.Second, func() bool {
		return store.NumWaiters("k") == waiters
	}))
	assert.NilError(t, store.Set("k", "shared"))
	wg.Wait()
	close(results)
	count := 0
	for value := range results {
		assert.Equal(t, value, "shared")
		count++
	}
	assert.Equal(t, count, waiters)
}

func TestGetWaitCancelled(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := store.Get(ctx, "k", true)
		result <- err
	}()
	assert.NilError(t, common.WaitFor(time.Millisecond, time.Second, func() bool {
		return store.NumWaiters("k") == 1
	}))
	cancel()

	select {
	case err := <-result:
		assert.Equal(t, common.CodeOf(err), common.CodeCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}
	// the waiter set is cleaned up and a set still succeeds
	assert.NilError(t, common.WaitFor(time.Millisecond, time.Second, func() bool {
		return store.NumWaiters("k") == 0
	}))
	assert.NilError(t, store.Set("k", "v"))
	value, err := store.Get(context.Background(), "k", false)
	assert.NilError(t, err)
	assert.Equal(t, value, "v")
}

func TestSnapshotIsCopy(t *testing.T) {
	store := NewStore()
	assert.NilError(t, store.Set("a", "1"))
	assert.NilError(t, store.Set("b", "2"))
	snapshot := store.Snapshot()
	assert.Equal(t, len(snapshot), 2)

	snapshot["c"] = "3"
	assert.Equal(t, store.Size(), 2, "mutating the snapshot must not touch the store")
}
