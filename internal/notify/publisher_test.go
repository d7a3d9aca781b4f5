package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// fakeConfirm resolves when the test delivers the broker's answer.
type fakeConfirm struct {
	tag  uint64
	done chan bool
}

func (c *fakeConfirm) WaitContext(ctx context.Context) (bool, error) {
	select {
	case ack := <-c.done:
		return ack, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	keys      []string
	pending   []*fakeConfirm
	ack       bool
	confirm   bool
	err       error
}

func (f *fakeChannel) publish(_ context.Context, key string, msg amqp.Publishing) (confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	c := &fakeConfirm{tag: uint64(len(f.published)), done: make(chan bool, 1)}
	f.pending = append(f.pending, c)
	if f.confirm {
		c.done <- f.ack
	}
	return c, nil
}

// answer delivers the broker's ack or nack for delivery tag.
func (f *fakeChannel) answer(tag uint64, ack bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[tag-1].done <- ack
}

func (f *fakeChannel) Close() error { return nil }

func newFake(ack, confirm bool) (*fakeChannel, *Publisher) {
	ch := &fakeChannel{ack: ack, confirm: confirm}
	p := newPublisher(ch, "appointment.notifications", zerolog.Nop())
	p.now = func() time.Time { return time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC) }
	return ch, p
}

func sample() appointment.Notification {
	return appointment.Notification{
		RecipientID:   uuid.New(),
		AppointmentID: uuid.New(),
		EventType:     appointment.ActionBooked,
		ScheduledAt:   time.Date(2030, 3, 5, 10, 0, 0, 0, time.UTC),
	}
}

func TestNotify_PublishesPersistentJSON(t *testing.T) {
	ch, p := newFake(true, true)
	n := sample()

	require.NoError(t, p.Notify(context.Background(), n))

	require.Len(t, ch.published, 1)
	assert.Equal(t, "appointment.notifications", ch.keys[0])
	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, appointment.ActionBooked, msg.Type)

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, n.RecipientID.String(), got["recipient_user_id"])
	assert.Equal(t, n.AppointmentID.String(), got["appointment_id"])
	assert.Equal(t, "booked", got["event_type"])
	assert.Equal(t, "2030-03-04T09:00:00Z", got["published_at"])
}

func TestNotify_Nack(t *testing.T) {
	_, p := newFake(false, true)
	assert.ErrorIs(t, p.Notify(context.Background(), sample()), ErrNotConfirmed)
}

func TestNotify_PublishError(t *testing.T) {
	ch, p := newFake(true, true)
	ch.err = errors.New("channel closed")
	assert.ErrorContains(t, p.Notify(context.Background(), sample()), "channel closed")
}

func TestNotify_ContextEndsWhileAwaitingConfirm(t *testing.T) {
	_, p := newFake(true, false)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.Notify(ctx, sample()), context.DeadlineExceeded)
}

func TestNotify_LateAckDoesNotConfirmNextMessage(t *testing.T) {
	ch, p := newFake(true, false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Notify(ctx, sample()), context.DeadlineExceeded)

	// The first message's ack arrives after its caller gave up.
	ch.answer(1, true)

	errc := make(chan error, 1)
	go func() { errc <- p.Notify(context.Background(), sample()) }()

	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.pending) == 2
	}, time.Second, 5*time.Millisecond)
	ch.answer(2, false)

	assert.ErrorIs(t, <-errc, ErrNotConfirmed)
}

func TestNotify_ConcurrentPublishesMatchTheirOwnConfirm(t *testing.T) {
	ch, p := newFake(true, false)

	errs := make([]chan error, 3)
	for i := range errs {
		errs[i] = make(chan error, 1)
		go func(c chan error) { c <- p.Notify(context.Background(), sample()) }(errs[i])
	}
	require.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.pending) == 3
	}, time.Second, 5*time.Millisecond)

	ch.mu.Lock()
	nacked := ch.pending[1]
	ch.mu.Unlock()
	for _, tag := range []uint64{3, 1, 2} {
		ch.answer(tag, tag != nacked.tag)
	}

	var failed int
	for _, c := range errs {
		if err := <-c; err != nil {
			assert.ErrorIs(t, err, ErrNotConfirmed)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}
