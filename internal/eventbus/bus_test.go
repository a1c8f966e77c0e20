package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()

	bus.Publish(StartConsumerMeasurement{Consumers: []ResourceConsumerRef{{PID: 1234}}})

	select {
	case ev := <-ch:
		require.Equal(t, 1234, ev.Consumers[0].PID)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestPublishDropsOldestWhenSubscriberBufferIsFull(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()

	for pid := 0; pid < 32; pid++ {
		bus.Publish(StartConsumerMeasurement{Consumers: []ResourceConsumerRef{{PID: pid}}})
	}

	var last StartConsumerMeasurement
	for {
		select {
		case ev := <-ch:
			last = ev
			continue
		default:
		}
		break
	}
	require.Equal(t, 31, last.Consumers[0].PID)
}

func TestSubscribersAddedAfterPublishMissHistory(t *testing.T) {
	bus := New()
	bus.Publish(StartConsumerMeasurement{Consumers: []ResourceConsumerRef{{PID: 1}}})

	ch := bus.Subscribe()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected replayed event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
