package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/billing-sync/internal/webhook"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafkaGo.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkaGo.Message
	fetchErrs []error
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafkaGo.Message{}, err
	}
	if len(r.queue) == 0 {
		r.cancel()
		return kafkaGo.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingProcessor struct {
	payloads []string
}

func (p *recordingProcessor) DispatchRaw(_ context.Context, payload []byte) webhook.Outcome {
	p.payloads = append(p.payloads, string(payload))
	return webhook.OutcomeOK
}

func TestEventWriter_Enqueue(t *testing.T) {
	w := &fakeWriter{}
	ew := newEventWriter(w, DefaultEventsTopic, logger.NewNop())

	require.NoError(t, ew.Enqueue(context.Background(), []byte(`{"type":"customer.created"}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, `{"type":"customer.created"}`, string(w.msgs[0].Value))
	assert.NotEmpty(t, w.msgs[0].Key)
	assert.Equal(t, "delivery_id", w.msgs[0].Headers[0].Key)
}

func TestEventWriter_KeysByCustomer(t *testing.T) {
	w := &fakeWriter{}
	ew := newEventWriter(w, DefaultEventsTopic, logger.NewNop())

	payloads := []string{
		`{"type":"customer.created","data":{"object":{"id":"cus_A","email":"a@example.com"}}}`,
		`{"type":"customer.subscription.created","data":{"object":{"id":"sub_1","customer":"cus_A"}}}`,
		`{"type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":{"id":"cus_A"}}}}`,
	}
	for _, p := range payloads {
		require.NoError(t, ew.Enqueue(context.Background(), []byte(p)))
	}
	require.Len(t, w.msgs, 3)
	for _, m := range w.msgs {
		assert.Equal(t, "cus_A", string(m.Key))
	}
}

func TestPartitionKey_Fallback(t *testing.T) {
	assert.Equal(t, "fallback", partitionKey([]byte(`not json`), "fallback"))
	assert.Equal(t, "fallback", partitionKey([]byte(`{"type":"ping"}`), "fallback"))
	assert.Equal(t, "fallback", partitionKey([]byte(`{"data":{"object":{"customer":null}}}`), "fallback"))
	assert.Equal(t, "in_1", partitionKey([]byte(`{"data":{"object":{"id":"in_1","customer":""}}}`), "fallback"))
}

func TestEventWriter_EnqueueSurvivesCanceledRequest(t *testing.T) {
	w := &fakeWriter{}
	ew := newEventWriter(w, DefaultEventsTopic, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, ew.Enqueue(ctx, []byte(`{}`)))
	assert.Len(t, w.msgs, 1)
}

func TestEventWriter_EnqueueError(t *testing.T) {
	ew := newEventWriter(&fakeWriter{err: errors.New("no leader")}, DefaultEventsTopic, logger.NewNop())
	assert.Error(t, ew.Enqueue(context.Background(), []byte(`{}`)))
}

func TestEventConsumer_DispatchesAndCommitsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		fetchErrs: []error{errors.New("coordinator not available")},
		queue: []kafkaGo.Message{
			{Offset: 1, Value: []byte("a")},
			{Offset: 2, Value: []byte("b")},
		},
		cancel: cancel,
	}
	proc := &recordingProcessor{}
	c := newEventConsumer(reader, proc, logger.NewNop())
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, []string{"a", "b"}, proc.payloads)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestEventConsumer_GivesUpWhenBackOffStops(t *testing.T) {
	reader := &fakeReader{fetchErrs: []error{errors.New("down")}, cancel: func() {}}
	c := newEventConsumer(reader, &recordingProcessor{}, logger.NewNop())
	c.newBackOff = func() backoff.BackOff { return &backoff.StopBackOff{} }

	assert.Error(t, c.Run(context.Background()))
}

func TestValidateBroker(t *testing.T) {
	assert.NoError(t, validateBroker("localhost:9092"))
	assert.Error(t, validateBroker(""))
	assert.Error(t, validateBroker("localhost"))
	assert.Error(t, validateBroker("localhost:port"))
}

func TestMissingTopics(t *testing.T) {
	required := RequiredTopics(Config{})
	missing := missingTopics(required, []kafkaGo.Partition{{Topic: DefaultEventsTopic}})
	require.Len(t, missing, 1)
	assert.Equal(t, DefaultNotifyTopic, missing[0].Topic)
}
