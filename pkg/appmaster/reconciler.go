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

package appmaster

import (
	"time"

	"github.com/avast/retry-go"
	"github.com/google/btree"

	"github.com/mrocklin/skein/pkg/cluster"
	"github.com/mrocklin/skein/pkg/common"
	"github.com/mrocklin/skein/pkg/model"
)

const (
	// retry budget for cluster interface calls; exceeding it is a fatal
	// master error
	clusterRetryAttempts = 5
	clusterRetryDelay    = 100 * time.Millisecond
)

// pendingAsk is one instance waiting for a container grant. Asks are
// matched oldest first among those with equal resources.
type pendingAsk struct {
	seq       uint64
	container *Container
	resources model.Resources
}

func pendingAskLess(a, b pendingAsk) bool {
	return a.seq < b.seq
}

// reconciler converges granted containers toward the desired instance
// set. The pending queue is mutated only under the master lock; cluster
// calls are made outside it.
type reconciler struct {
	api     cluster.API
	pending *btree.BTreeG[pendingAsk]
	seq     uint64
	// byContainer finds the queued ask for an instance on kill/scale-down.
	byContainer map[*Container]pendingAsk
}

func newReconciler(api cluster.API) *reconciler {
	return &reconciler{
		api:         api,
		pending:     btree.NewG[pendingAsk](8, pendingAskLess),
		byContainer: make(map[*Container]pendingAsk),
	}
}

// enqueue queues an instance for allocation and returns the request to
// issue to the cluster.
func (r *reconciler) enqueue(c *Container, resources model.Resources) cluster.Request {
	r.seq++
	ask := pendingAsk{seq: r.seq, container: c, resources: resources}
	r.pending.ReplaceOrInsert(ask)
	r.byContainer[c] = ask
	return cluster.Request{Resources: resources}
}

// dequeueOldestMatch pops the oldest pending ask whose resources equal
// the grant, or nil when the grant has no taker.
func (r *reconciler) dequeueOldestMatch(resources model.Resources) *Container {
	var found *pendingAsk
	r.pending.Ascend(func(ask pendingAsk) bool {
		if ask.resources == resources {
			found = &ask
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	r.pending.Delete(*found)
	delete(r.byContainer, found.container)
	return found.container
}

// remove drops a queued instance, reporting whether it was queued. The
// already-issued cluster request stays outstanding; its eventual grant
// finds no taker and is released.
func (r *reconciler) remove(c *Container) bool {
	ask, ok := r.byContainer[c]
	if !ok {
		return false
	}
	r.pending.Delete(ask)
	delete(r.byContainer, c)
	return true
}

// removeAll clears the queue, used on shutdown.
func (r *reconciler) removeAll() {
	r.pending.Clear(false)
	r.byContainer = make(map[*Container]pendingAsk)
}

func (r *reconciler) pendingCount() int {
	return r.pending.Len()
}

// call invokes a cluster operation, retrying transient UNAVAILABLE
// failures with exponential backoff up to the retry budget.
func (r *reconciler) call(fn func() error) error {
	return retry.Do(fn,
		retry.RetryIf(func(err error) bool {
			return common.CodeOf(err) == common.CodeUnavailable
		}),
		retry.Attempts(clusterRetryAttempts),
		retry.Delay(clusterRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
