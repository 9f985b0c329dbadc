package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	exchanges  map[string]string
	queues     []string
	bindings   []string
	published  []published
	deliveries chan amqp.Delivery
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{exchanges: map[string]string{}, deliveries: make(chan amqp.Delivery, 8)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.queues = append(f.queues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.bindings = append(f.bindings, exchange+"/"+key+"->"+name)
	return nil
}

func (f *fakeChannel) Qos(int, int, bool) error { return nil }

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type ackRecorder struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error { return nil }

func testUser(t *testing.T) *entity.User {
	t.Helper()
	u, err := entity.NewUser(entity.UserParams{
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQ",
		FirstName:    "Alice",
		LastName:     "Wong",
	})
	require.NoError(t, err)
	return u
}

func TestPublisher_Publish(t *testing.T) {
	ch := newFakeChannel()
	p, err := newPublisher(ch, "")
	require.NoError(t, err)
	assert.Equal(t, amqp.ExchangeTopic, ch.exchanges[DefaultExchange])

	ev := NewUserEvent(SubjectUserCreated, testUser(t))
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, DefaultExchange, got.exchange)
	assert.Equal(t, SubjectUserCreated, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, ev.ID, got.msg.MessageId)
	assert.NotContains(t, string(got.msg.Body), "$2a$")

	var decoded Event
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, ev.UserID, decoded.UserID)
	assert.Equal(t, "alice@example.com", decoded.Email)
	assert.True(t, decoded.IsActive)

	assert.Error(t, p.Publish(context.Background(), Event{}))

	p.Close()
	assert.True(t, ch.closed)
}

func TestConsumer_DeclaresAndBinds(t *testing.T) {
	ch := newFakeChannel()
	l, _ := test.NewNullLogger()
	_, err := newConsumer(ch, "", "emails", []string{SubjectUserCreated, SubjectPasswordChanged}, l)
	require.NoError(t, err)

	assert.Equal(t, []string{"emails"}, ch.queues)
	assert.Equal(t, []string{
		"user.events/user.created->emails",
		"user.events/user.password_changed->emails",
	}, ch.bindings)
}

func TestConsumer_Run(t *testing.T) {
	ch := newFakeChannel()
	l, hook := test.NewNullLogger()
	c, err := newConsumer(ch, "", "emails", nil, l)
	require.NoError(t, err)

	acks := &ackRecorder{}
	good, _ := json.Marshal(Event{Subject: SubjectUserCreated, UserID: "u1"})
	failing, _ := json.Marshal(Event{Subject: SubjectUserCreated, UserID: "fail"})

	ch.deliveries <- amqp.Delivery{Acknowledger: acks, Body: good}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, Body: []byte("{nope")}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, Body: failing}
	ch.deliveries <- amqp.Delivery{Acknowledger: acks, Body: failing, Redelivered: true}

	var mu sync.Mutex
	var seen []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(_ context.Context, ev Event) error {
			mu.Lock()
			seen = append(seen, ev.UserID)
			mu.Unlock()
			if ev.UserID == "fail" {
				return errors.New("smtp down")
			}
			return nil
		})
	}()

	assert.Eventually(t, func() bool {
		acks.mu.Lock()
		defer acks.mu.Unlock()
		return acks.acks+acks.nacks == 4
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"u1", "fail", "fail"}, seen)
	assert.Equal(t, 1, acks.acks)
	assert.Equal(t, []bool{false, true, false}, acks.requeue)
	assert.NotEmpty(t, hook.AllEntries())
}

func TestConsumer_ClosedChannel(t *testing.T) {
	ch := newFakeChannel()
	l, _ := test.NewNullLogger()
	c, err := newConsumer(ch, "", "emails", nil, l)
	require.NoError(t, err)

	close(ch.deliveries)
	assert.Error(t, c.Run(context.Background(), func(context.Context, Event) error { return nil }))
}
