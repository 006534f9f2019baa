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

package locking

import (
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

func TestMutexBasics(t *testing.T) {
	var m Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, counter, 1600)
}

func TestRWMutexBasics(t *testing.T) {
	var m RWMutex
	m.RLock()
	m.RLock()
	m.RUnlock()
	m.RUnlock()
	m.Lock()
	m.Unlock()
}

func TestTrackingDisabledByDefault(t *testing.T) {
	assert.Assert(t, !IsTrackingEnabled())
	assert.Assert(t, !IsDeadlockDetected())
	assert.Equal(t, GetDeadlockTimeoutSeconds(), 60)
}
