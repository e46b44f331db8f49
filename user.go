// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package siridb

import (
	"sync/atomic"
)

// User access bits. A user needs the matching bit set for an operation to be
// accepted by the query layer.
const (
	AccessSelect uint32 = 1 << iota
	AccessShow
	AccessList
	AccessCount
	AccessInsert
	AccessCreate
	AccessAlter
	AccessDrop
	AccessGrant
	AccessRevoke
)

// AccessFull has every access bit set.
const AccessFull = AccessSelect | AccessShow | AccessList | AccessCount |
	AccessInsert | AccessCreate | AccessAlter | AccessDrop | AccessGrant | AccessRevoke

// User is a database account. Users are shared between the user registry and
// any number of authenticated client connections, so their lifetime is
// managed with a reference count. Each connection that is associated with a
// user holds exactly one reference for as long as the connection lives.
type User struct {
	refs int32

	Name   string
	Access uint32
}

// NewUser returns a user with a single reference, held by the creator.
func NewUser(name string, access uint32) *User {
	return &User{refs: 1, Name: name, Access: access}
}

func (u *User) Incref() {
	atomic.AddInt32(&u.refs, 1)
}

func (u *User) Decref() {
	atomic.AddInt32(&u.refs, -1)
}

// Refcount returns the current number of references.
func (u *User) Refcount() int32 {
	return atomic.LoadInt32(&u.refs)
}
