// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

// Package ctxutils offers a context that carries the cause of a connection
// shutdown, so waiters can tell a clean close from a cancellation.
package ctxutils

import (
	"context"
	"sync"
)

// WithError is like context.WithCancel but the returned context reports err
// from Err() once the cancel func fired. Parent cancellation still wins when
// it happens first.
func WithError(parent context.Context, err error) (context.Context, context.CancelFunc) {
	ec := &errCtx{
		Context: parent,
		done:    make(chan struct{}),
	}

	go func() {
		select {
		case <-parent.Done():
			ec.close(parent.Err())
		case <-ec.done:
		}
	}()

	return ec, func() { ec.close(err) }
}

type errCtx struct {
	context.Context

	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (ec *errCtx) close(err error) {
	ec.once.Do(func() {
		ec.mu.Lock()
		ec.err = err
		ec.mu.Unlock()
		close(ec.done)
	})
}

func (ec *errCtx) Done() <-chan struct{} { return ec.done }

func (ec *errCtx) Err() error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.err
}
