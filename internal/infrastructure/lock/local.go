// Package lock serializes work on a key within one process.
package lock

import (
	"context"

	"github.com/im7mortal/kmutex"
)

// Local is a keyed mutex. Lock waits for the key or for ctx.
type Local struct {
	km *kmutex.Kmutex
}

func NewLocal() *Local {
	return &Local{km: kmutex.New()}
}

// Lock blocks until key is free. The returned func releases it.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	acquired := make(chan struct{})
	go func() {
		l.km.Lock(key)
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() { l.km.Unlock(key) }, nil
	case <-ctx.Done():
		go func() {
			<-acquired
			l.km.Unlock(key)
		}()
		return nil, ctx.Err()
	}
}
