package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	messages  []kafkago.Message
	pos       int
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	if r.pos >= len(r.messages) {
		<-ctx.Done()
		return kafkago.Message{}, ctx.Err()
	}
	msg := r.messages[r.pos]
	r.pos++
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestProducerPublishEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newProducerWithWriter(w, "apiserver", nil)

	payload := RunRequestedPayload{RunID: common.NewID(), Screen: "pilot", ProfileObject: "profiles/p1.csv"}
	require.NoError(t, p.Publish(context.Background(), TopicRunRequested, string(payload.RunID), TopicRunRequested, payload))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, TopicRunRequested, msg.Topic)
	assert.Equal(t, string(payload.RunID), string(msg.Key))

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, TopicRunRequested, envelope.EventType)
	assert.Equal(t, "apiserver", envelope.Source)
	assert.NotEmpty(t, envelope.EventID)

	var decoded RunRequestedPayload
	require.NoError(t, envelope.DecodePayload(&decoded))
	assert.Equal(t, payload.RunID, decoded.RunID)
}

func TestProducerClosedRejectsPublish(t *testing.T) {
	p := newProducerWithWriter(&fakeWriter{}, "apiserver", nil)
	require.NoError(t, p.Close())

	err := p.Publish(context.Background(), TopicRunRequested, "k", TopicRunRequested, struct{}{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessageQueueError))
}

func encodedEnvelope(t *testing.T, offset int64) kafkago.Message {
	t.Helper()
	envelope, err := NewEnvelope(TopicRunRequested, "test", RunRequestedPayload{RunID: common.NewID()})
	require.NoError(t, err)
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	return kafkago.Message{Topic: TopicRunRequested, Offset: offset, Value: raw}
}

func TestConsumerHandlesAndCommits(t *testing.T) {
	r := &fakeReader{messages: []kafkago.Message{encodedEnvelope(t, 1), encodedEnvelope(t, 2)}}
	c := newConsumerWithReader(r, TopicRunRequested, 0, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var handled int
	err := c.Run(ctx, func(ctx context.Context, e *EventEnvelope) error {
		handled++
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []int64{1, 2}, r.committed)
}

func TestConsumerRetriesThenSkips(t *testing.T) {
	r := &fakeReader{messages: []kafkago.Message{encodedEnvelope(t, 5)}}
	c := newConsumerWithReader(r, TopicRunRequested, 2, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var attempts int
	err := c.Run(ctx, func(ctx context.Context, e *EventEnvelope) error {
		attempts++
		return errors.New(errors.ErrCodeInternal, "transient")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, attempts)
	// The poison message is committed so the partition is not wedged.
	assert.Equal(t, []int64{5}, r.committed)
}

func TestConsumerDropsUndecodableMessage(t *testing.T) {
	r := &fakeReader{messages: []kafkago.Message{{Topic: TopicRunRequested, Offset: 9, Value: []byte("not json")}}}
	c := newConsumerWithReader(r, TopicRunRequested, 0, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var handled int
	err := c.Run(ctx, func(ctx context.Context, e *EventEnvelope) error {
		handled++
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, handled)
	assert.Equal(t, []int64{9}, r.committed)
}
