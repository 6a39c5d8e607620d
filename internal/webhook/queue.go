package webhook

import (
	"context"
	"errors"
	"sync"

	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/google/uuid"
)

var (
	// ErrQueueFull буфер очереди заполнен
	ErrQueueFull = errors.New("event queue is full")
	// ErrQueueClosed очередь остановлена
	ErrQueueClosed = errors.New("event queue is closed")
)

// Queue передает payload события на асинхронную обработку
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// EventProcessor обрабатывает payload события
type EventProcessor interface {
	DispatchRaw(ctx context.Context, payload []byte) Outcome
}

// QueueMetrics метрики очереди
type QueueMetrics interface {
	SetQueueDepth(n int)
}

type delivery struct {
	id      string
	payload []byte
}

// ChannelQueueOptions параметры ChannelQueue
type ChannelQueueOptions struct {
	Workers int
	Size    int
}

// ChannelQueue ограниченная очередь в памяти с пулом воркеров
type ChannelQueue struct {
	items     chan delivery
	processor EventProcessor
	workers   int
	metrics   QueueMetrics
	log       *logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewChannelQueue создает очередь. Воркеры запускаются в Start.
func NewChannelQueue(processor EventProcessor, opts ChannelQueueOptions, metrics QueueMetrics, log *logger.Logger) *ChannelQueue {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Size <= 0 {
		opts.Size = 256
	}
	// контекст воркеров не зависит от контекста запроса: ответ уже отправлен
	ctx, cancel := context.WithCancel(context.Background())
	return &ChannelQueue{
		items:     make(chan delivery, opts.Size),
		processor: processor,
		workers:   opts.Workers,
		metrics:   metrics,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start запускает воркеры
func (q *ChannelQueue) Start() {
	for i := 0; i < q.workers; i++ {
		w := &Worker{id: i, queue: q}
		q.wg.Add(1)
		go w.run()
	}
	q.log.Infow("Event queue started", "workers", q.workers, "size", cap(q.items))
}

// Enqueue ставит событие в очередь без ожидания
func (q *ChannelQueue) Enqueue(_ context.Context, payload []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	d := delivery{id: uuid.NewString(), payload: payload}
	select {
	case q.items <- d:
		q.reportDepth()
		q.log.Debugw("Webhook event enqueued", "deliveryID", d.id)
		return nil
	default:
		return ErrQueueFull
	}
}

// Len возвращает число ожидающих событий
func (q *ChannelQueue) Len() int {
	return len(q.items)
}

// Close перестает принимать события и дожидается обработки уже принятых.
// Если ctx истекает раньше, текущие обработчики получают отмену.
func (q *ChannelQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.log.Info("Event queue drained")
		return nil
	case <-ctx.Done():
		q.log.Warnw("Event queue closed before drain completed", "remaining", len(q.items))
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *ChannelQueue) reportDepth() {
	if q.metrics != nil {
		q.metrics.SetQueueDepth(len(q.items))
	}
}

// Worker забирает события из очереди и передает их диспетчеру
type Worker struct {
	id    int
	queue *ChannelQueue
}

func (w *Worker) run() {
	defer w.queue.wg.Done()
	for d := range w.queue.items {
		w.queue.reportDepth()
		outcome := w.queue.processor.DispatchRaw(w.queue.ctx, d.payload)
		w.queue.log.Debugw("Webhook event processed", "deliveryID", d.id, "worker", w.id, "outcome", string(outcome))
	}
}

// SyncQueue обрабатывает событие сразу, в контексте запроса
type SyncQueue struct {
	processor EventProcessor
}

// NewSyncQueue создает синхронную очередь
func NewSyncQueue(processor EventProcessor) *SyncQueue {
	return &SyncQueue{processor: processor}
}

// Enqueue обрабатывает событие до возврата
func (q *SyncQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.processor.DispatchRaw(ctx, payload)
	return nil
}
