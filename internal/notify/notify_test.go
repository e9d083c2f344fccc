package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/cuongbtq/media-jobs/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	routingKey string
	sent       []any
	err        error
	failures   int // attempts that fail before publishing succeeds
	attempts   int
}

func (f *fakePublisher) PublishJSON(ctx context.Context, routingKey string, v any) error {
	f.attempts++
	if f.err != nil {
		return f.err
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("channel closed")
	}
	f.routingKey = routingKey
	f.sent = append(f.sent, v)
	return nil
}

// recordingAcker records how each delivery tag was settled
type recordingAcker struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeFeed struct {
	rows []domain.Notification
	err  error
}

func (f *fakeFeed) InsertNotification(ctx context.Context, n domain.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, n)
	return nil
}

func TestDispatcher_Enqueue(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, "notifications", logger.Discard())

	n := domain.Notification{
		RecipientUserID: "U1",
		Category:        domain.CategorySlideshowComplete,
		Message:         "Your slideshow is ready",
		Link:            "https://cards.example/share/abc",
	}
	require.NoError(t, d.Enqueue(context.Background(), n))

	assert.Equal(t, "notifications", pub.routingKey)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, n, pub.sent[0])
}

func TestDispatcher_EnqueueErrors(t *testing.T) {
	d := NewDispatcher(&fakePublisher{err: errors.New("channel closed")}, "notifications", logger.Discard())

	err := d.Enqueue(context.Background(), domain.Notification{RecipientUserID: "U1", Message: "x"})
	assert.Error(t, err)

	err = d.Enqueue(context.Background(), domain.Notification{Message: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestDispatcher_EnqueueDoesNotRetry(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	d := NewDispatcher(pub, "notifications", logger.Discard())

	err := d.Enqueue(context.Background(), domain.Notification{RecipientUserID: "U1", Message: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, pub.attempts)
	assert.Empty(t, pub.sent)
}

func delivery(t *testing.T, acker amqp.Acknowledger, tag uint64, v any) amqp.Delivery {
	t.Helper()
	body, ok := v.([]byte)
	if !ok {
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: body}
}

func TestFeedConsumer_Handle(t *testing.T) {
	valid := domain.Notification{RecipientUserID: "U1", Category: domain.CategoryFaceSwapComplete, Message: "Done"}

	tests := []struct {
		name        string
		store       FeedStore
		body        any
		wantAcked   bool
		wantRequeue bool
		wantRows    int
	}{
		{name: "stored and acked", store: &fakeFeed{}, body: valid, wantAcked: true, wantRows: 1},
		{name: "malformed json acked", store: &fakeFeed{}, body: []byte("{nope"), wantAcked: true},
		{name: "missing recipient acked", store: &fakeFeed{}, body: domain.Notification{Message: "x"}, wantAcked: true},
		{name: "store error requeued", store: &fakeFeed{err: errors.New("db down")}, body: valid, wantRequeue: true},
		{name: "no store acked", store: nil, body: valid, wantAcked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acker := &recordingAcker{}
			f := NewFeedConsumer(tt.store, logger.Discard())

			f.Handle(context.Background(), delivery(t, acker, 7, tt.body))

			if tt.wantAcked {
				assert.Equal(t, []uint64{7}, acker.acked)
				assert.Empty(t, acker.nacked)
			} else {
				assert.Empty(t, acker.acked)
				assert.Equal(t, []uint64{7}, acker.nacked)
				assert.Equal(t, []bool{tt.wantRequeue}, acker.requeue)
			}
			if feed, ok := tt.store.(*fakeFeed); ok {
				assert.Len(t, feed.rows, tt.wantRows)
			}
		})
	}
}

func TestFeedConsumer_RunStopsOnCancel(t *testing.T) {
	feed := &fakeFeed{}
	acker := &recordingAcker{}
	f := NewFeedConsumer(feed, logger.Discard())

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- delivery(t, acker, 1, domain.Notification{RecipientUserID: "U1", Message: "a"})
	deliveries <- delivery(t, acker, 2, domain.Notification{RecipientUserID: "U2", Message: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, deliveries) }()

	require.Eventually(t, func() bool {
		acker.mu.Lock()
		defer acker.mu.Unlock()
		return len(acker.acked) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("feed consumer did not stop")
	}
	assert.Len(t, feed.rows, 2)
}
