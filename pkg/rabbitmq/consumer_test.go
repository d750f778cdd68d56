package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type subscriberStub struct {
	consume func(ctx context.Context) error
	closed  bool
}

func (s *subscriberStub) Consume(ctx context.Context, exchange, queueName, routingKey string, handler MessageHandler) error {
	return s.consume(ctx)
}

func (s *subscriberStub) Close() { s.closed = true }

func TestRunWithReconnect_ReconnectsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var subs []*subscriberStub
	attempts := 0
	connect := func() (Subscriber, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		switch attempts {
		case 1:
			return nil, errors.New("connection refused")
		case 2:
			sub := &subscriberStub{consume: func(context.Context) error { return ErrDeliveriesClosed }}
			subs = append(subs, sub)
			return sub, nil
		default:
			sub := &subscriberStub{consume: func(ctx context.Context) error {
				cancel()
				<-ctx.Done()
				return nil
			}}
			subs = append(subs, sub)
			return sub, nil
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunWithReconnect(ctx, connect, "withdrawal_account_events", "cleanup", "withdrawal_account.recipient_orphaned", func([]byte) bool { return true }, time.Millisecond)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithReconnect did not return after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 connection attempts, got %d", attempts)
	}
	for i, sub := range subs {
		if !sub.closed {
			t.Fatalf("subscriber %d was not closed", i)
		}
	}
}

func TestRunWithReconnect_StopsWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	connect := func() (Subscriber, error) {
		cancel()
		return nil, errors.New("connection refused")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunWithReconnect(ctx, connect, "ex", "q", "rk", func([]byte) bool { return true }, time.Hour)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunWithReconnect kept waiting after cancellation")
	}
}
