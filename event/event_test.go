// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testEventType = EventType("test.event")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSubscriber struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed atomic.Int32
}

func (r *recordingSubscriber) Deliver(evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSubscriber) Close() {
	r.closed.Add(1)
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestSubscribePublish(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	subId, ch := eb.Subscribe(testEventType)
	eb.Publish(testEventType, NewEvent(testEventType, "hello"))
	select {
	case evt := <-ch:
		assert.Equal(t, "hello", evt.Data)
		assert.Equal(t, testEventType, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	eb.Unsubscribe(testEventType, subId)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestSubscribeFunc(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	got := make(chan any, 1)
	eb.SubscribeFunc(testEventType, func(evt Event) { got <- evt.Data })
	eb.Publish(testEventType, NewEvent(testEventType, 42))
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishOtherType(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	sub := &recordingSubscriber{}
	eb.RegisterSubscriber(testEventType, sub)
	eb.Publish("other.event", NewEvent("other.event", nil))
	assert.Equal(t, 0, sub.count())
}

func TestDeliverFailureUnregisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	eb := NewEventBus(registry, nil)
	defer eb.Stop()
	sub := &recordingSubscriber{err: errors.New("deliver failed")}
	subId := eb.RegisterSubscriber(testEventType, sub)
	require.NotZero(t, subId)

	eb.Publish(testEventType, NewEvent(testEventType, "x"))
	eb.mu.RLock()
	_, exists := eb.subscribers[testEventType][subId]
	eb.mu.RUnlock()
	assert.False(t, exists)
	assert.Equal(t, int32(1), sub.closed.Load())
	assert.InDelta(
		t,
		1,
		testutil.ToFloat64(eb.metrics.deliveryErrors.WithLabelValues(string(testEventType), "custom")),
		0,
	)
}

type panicSubscriber struct{}

func (panicSubscriber) Deliver(Event) error { panic("boom") }
func (panicSubscriber) Close()              {}

func TestDeliverPanicRecovered(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	eb.RegisterSubscriber(testEventType, panicSubscriber{})
	other := &recordingSubscriber{}
	eb.RegisterSubscriber(testEventType, other)
	require.NotPanics(t, func() {
		eb.Publish(testEventType, NewEvent(testEventType, nil))
	})
	assert.Equal(t, 1, other.count())
}

func TestChannelSubscriberDeliverNonBlocking(t *testing.T) {
	const bufferSize = 5
	sub := newChannelSubscriber(bufferSize, nil)
	for i := range bufferSize + 3 {
		require.NoError(t, sub.Deliver(NewEvent(testEventType, i)))
	}
	assert.Len(t, sub.ch, bufferSize)
	sub.Close()
	sub.Close()
	require.NoError(t, sub.Deliver(NewEvent(testEventType, "after close")))
}

func TestPublishAsync(t *testing.T) {
	eb := NewEventBus(nil, nil)
	sub := &recordingSubscriber{}
	eb.RegisterSubscriber(testEventType, sub)
	for i := range 50 {
		require.True(t, eb.PublishAsync(testEventType, NewEvent(testEventType, i)))
	}
	// Stop delivers everything still queued
	eb.Stop()
	assert.Equal(t, 50, sub.count())
	assert.Equal(t, int32(1), sub.closed.Load())
	assert.False(t, eb.PublishAsync(testEventType, NewEvent(testEventType, "late")))
	// Stop is idempotent
	eb.Stop()
}

type blockingSubscriber struct {
	release chan struct{}
}

func (b *blockingSubscriber) Deliver(Event) error {
	<-b.release
	return nil
}

func (b *blockingSubscriber) Close() {}

func TestPublishAsyncQueueFull(t *testing.T) {
	registry := prometheus.NewRegistry()
	eb := NewEventBus(registry, nil)
	sub := &blockingSubscriber{release: make(chan struct{})}
	eb.RegisterSubscriber(testEventType, sub)
	accepted := 0
	for range AsyncQueueSize + AsyncWorkerPoolSize + 10 {
		if eb.PublishAsync(testEventType, NewEvent(testEventType, nil)) {
			accepted++
		}
	}
	assert.Less(t, accepted, AsyncQueueSize+AsyncWorkerPoolSize+10)
	assert.Positive(
		t,
		testutil.ToFloat64(eb.metrics.droppedTotal.WithLabelValues(string(testEventType), "queue-full")),
	)
	close(sub.release)
	eb.Stop()
}
