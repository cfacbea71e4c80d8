package signal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishReachesSubscribersInOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(SessionExpired, func() { got = append(got, "a") })
	bus.Subscribe(SessionExpired, func() { got = append(got, "b") })
	bus.Subscribe(Logout, func() { got = append(got, "logout") })

	bus.Publish(SessionExpired)

	require.Equal(t, []string{"a", "b"}, got)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsub := bus.Subscribe(Logout, func() { calls++ })

	bus.Publish(Logout)
	unsub()
	unsub()
	bus.Publish(Logout)

	require.Equal(t, 1, calls)
}

func TestPublishFromListener(t *testing.T) {
	bus := NewBus()
	var order []Topic
	bus.Subscribe(SessionExpired, func() {
		order = append(order, SessionExpired)
		bus.Publish(Logout)
	})
	bus.Subscribe(Logout, func() { order = append(order, Logout) })

	bus.Publish(SessionExpired)

	require.Equal(t, []Topic{SessionExpired, Logout}, order)
}

func TestChannelDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus()
	ch, stop := bus.Channel(SessionExpired)
	defer stop()

	bus.Publish(SessionExpired)
	bus.Publish(SessionExpired)

	<-ch
	select {
	case <-ch:
		t.Fatal("expected coalesced signal")
	default:
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	bus.Subscribe(Logout, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Logout)
		}()
	}
	wg.Wait()

	require.Equal(t, 20, count)
}
