/*
 * Copyright 2018 The Trickster Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package locks provides reference-counted named read/write locks, used to
// serialize writers of the same cache key without a lock per resident key
package locks

import (
	"fmt"
	"sync"
)

// NamedLocker provides a locker for handling Named Locks
type NamedLocker interface {
	Acquire(string) (NamedLock, error)
	RAcquire(string) (NamedLock, error)
	// Len returns the number of names currently locked or waited on
	Len() int
}

// NamedLock defines the interface for implementing Named Locks
type NamedLock interface {
	Release() error
	RRelease() error
}

type namedLocker struct {
	mtx   sync.Mutex
	locks map[string]*namedLock
}

// NewNamedLocker returns a new Named Locker
func NewNamedLocker() NamedLocker {
	return &namedLocker{
		locks: make(map[string]*namedLock),
	}
}

type namedLock struct {
	sync.RWMutex
	name   string
	refs   int
	locker *namedLocker
}

func (lk *namedLocker) Len() int {
	lk.mtx.Lock()
	defer lk.mtx.Unlock()
	return len(lk.locks)
}

func (lk *namedLocker) ref(lockName string) (*namedLock, error) {
	if lockName == "" {
		return nil, errInvalidLockName(lockName)
	}
	lk.mtx.Lock()
	nl, ok := lk.locks[lockName]
	if !ok {
		nl = &namedLock{name: lockName, locker: lk}
		lk.locks[lockName] = nl
	}
	nl.refs++
	lk.mtx.Unlock()
	return nl, nil
}

// unref drops the lock from the locker once nobody holds or waits on it
func (nl *namedLock) unref() error {
	if nl.locker == nil || nl.name == "" {
		return errInvalidLockName(nl.name)
	}
	nl.locker.mtx.Lock()
	nl.refs--
	if nl.refs <= 0 {
		delete(nl.locker.locks, nl.name)
	}
	nl.locker.mtx.Unlock()
	return nil
}

// Acquire locks the named lock for writing, and blocks until the lock is acquired
func (lk *namedLocker) Acquire(lockName string) (NamedLock, error) {
	nl, err := lk.ref(lockName)
	if err != nil {
		return nil, err
	}
	nl.Lock()
	return nl, nil
}

// RAcquire locks the named lock for reading, and blocks until the rlock is acquired
func (lk *namedLocker) RAcquire(lockName string) (NamedLock, error) {
	nl, err := lk.ref(lockName)
	if err != nil {
		return nil, err
	}
	nl.RLock()
	return nl, nil
}

// Release releases the write lock on the subject Named Lock
func (nl *namedLock) Release() error {
	if err := nl.unref(); err != nil {
		return err
	}
	nl.Unlock()
	return nil
}

// RRelease releases the read lock on the subject Named Lock
func (nl *namedLock) RRelease() error {
	if err := nl.unref(); err != nil {
		return err
	}
	nl.RUnlock()
	return nil
}

func errInvalidLockName(name string) error {
	return fmt.Errorf("invalid lock name: %s", name)
}
