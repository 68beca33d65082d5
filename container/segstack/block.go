package segstack

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
)

var ErrClosed = errors.New("[segstack] block stack closed")

// Block wraps a Stack with a Pop that waits,it works like a golang chan without capacity limit
type Block[T any] struct {
	wake  chan *struct{}
	stack *Stack[T]
	count int64 //negative after Close
}

func NewBlock[T any](quasiFactor int, opts ...Option) *Block[T] {
	return &Block[T]{
		wake:  make(chan *struct{}, 1),
		stack: New[T](quasiFactor, opts...),
	}
}

// Push returns the count after this push
func (b *Block[T]) Push(data T) (int64, error) {
	var oldcount int64
	for {
		oldcount = atomic.LoadInt64(&b.count)
		if oldcount < 0 {
			return oldcount + math.MaxInt64, ErrClosed
		}
		if atomic.CompareAndSwapInt64(&b.count, oldcount, oldcount+1) {
			break
		}
	}
	b.stack.Push(data)
	if oldcount == 0 {
		b.notify()
	}
	return oldcount + 1, nil
}

// Pop waits until a value arrives,ctx is done or the stack is closed and drained
func (b *Block[T]) Pop(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var empty T
	for {
		if ctx.Err() != nil {
			return empty, ctx.Err()
		}
		if data, ok := b.stack.Pop(); ok {
			if left := atomic.AddInt64(&b.count, -1); left > 0 || (left < 0 && left+math.MaxInt64 > 0) {
				//other waiters may sleep while values are left
				b.notify()
			}
			return data, nil
		}
		if atomic.LoadInt64(&b.count) < 0 {
			//closed and drained,let the next waiter see it too
			b.notify()
			return empty, ErrClosed
		}
		select {
		case <-b.wake:
		case <-ctx.Done():
			return empty, ctx.Err()
		}
	}
}

func (b *Block[T]) notify() {
	select {
	case b.wake <- nil:
	default:
	}
}

func (b *Block[T]) Count() int64 {
	count := atomic.LoadInt64(&b.count)
	if count < 0 {
		count += math.MaxInt64
	}
	return count
}

// Stack exposes the wrapped stack for statistics
func (b *Block[T]) Stack() *Stack[T] {
	return b.stack
}

// Close makes every later Push fail,Pop still returns what is left
func (b *Block[T]) Close() {
	for {
		oldcount := atomic.LoadInt64(&b.count)
		if oldcount < 0 {
			return
		}
		if atomic.CompareAndSwapInt64(&b.count, oldcount, oldcount-math.MaxInt64) {
			break
		}
	}
	b.notify()
}
