// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package valueset

// PartitionIndex addresses a Partition within an Arena.
type PartitionIndex int32

// NoPartition is the sentinel for "heads no partition".
const NoPartition PartitionIndex = -1

// partition is a contiguous segment of the weak topological order forming a
// strongly-connected component: a head node, a tail node, and a dirty flag
// indicating whether any contained node's range changed during the current
// sweep.
type partition struct {
	head  Index
	tail  Index
	dirty bool
}

// NewPartition allocates a Partition headed and tailed at idx (a singleton
// until PartitionPrepend grows it), returning its PartitionIndex.
func (a *Arena) NewPartition(head Index) PartitionIndex {
	pidx := PartitionIndex(len(a.partitions))
	a.partitions = append(a.partitions, partition{head: head, tail: head})

	return pidx
}

// PartitionPrepend threads idx onto the front of p's chain: idx.next becomes
// p's old head, and p's head becomes idx. This is Bourdoncle's
// partitionPrepend operation, giving O(1) prepend without reallocating the
// chain.
func (a *Arena) PartitionPrepend(p PartitionIndex, idx Index) {
	part := &a.partitions[p]
	a.nodes[idx].next = part.head
	part.head = idx
}

// PartitionHead returns p's current head node.
func (a *Arena) PartitionHead(p PartitionIndex) Index {
	return a.partitions[p].head
}

// PartitionTail returns p's tail node.
func (a *Arena) PartitionTail(p PartitionIndex) Index {
	return a.partitions[p].tail
}

// IsDirty reports whether any node in p changed range during the current
// sweep.
func (a *Arena) IsDirty(p PartitionIndex) bool {
	return a.partitions[p].dirty
}

// SetDirty sets p's dirty flag.
func (a *Arena) SetDirty(p PartitionIndex, dirty bool) {
	a.partitions[p].dirty = dirty
}

