package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/internal/repository"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v78"
)

const (
	createdEvent       = `{"type":"customer.created","data":{"object":{"id":"cus_1","email":"a@b.com","name":"A"}}}`
	subUpdatedEvent    = `{"type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_1","plan":{"id":"price_1","product":"prod_1","amount":1000},"__testProduct":{"name":"Pro"}}}}`
	subDeletedEvent    = `{"type":"customer.subscription.deleted","data":{"object":{"customer":"cus_1"}}}`
	customerDeletedEvt = `{"type":"customer.deleted","data":{"object":{"id":"cus_1"}}}`
)

type fakeMetrics struct {
	mu     sync.Mutex
	events map[string]int
	parse  int
}

func (m *fakeMetrics) ObserveWebhookEvent(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string]int)
	}
	m.events[kind+":"+outcome]++
}

func (m *fakeMetrics) IncParseFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parse++
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []domain.RecordChange
	err     error
}

func (n *recordingNotifier) NotifyRecordChange(_ context.Context, change domain.RecordChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return n.err
}

type fakeProducts struct {
	calls int
	err   error
	panic bool
}

func (p *fakeProducts) GetProduct(_ context.Context, id string) (*stripego.Product, error) {
	p.calls++
	if p.panic {
		panic("boom")
	}
	if p.err != nil {
		return nil, p.err
	}
	return &stripego.Product{ID: id, Name: "Remote " + id}, nil
}

type fixture struct {
	store      *repository.MemoryRecordStore
	dispatcher *Dispatcher
	metrics    *fakeMetrics
	notifier   *recordingNotifier
}

func newFixture(t *testing.T, resolver ProductResolver) *fixture {
	t.Helper()
	store := repository.NewMemoryRecordStore()
	notifier := &recordingNotifier{}
	metrics := &fakeMetrics{}
	log := logger.NewNop()
	handlers := NewHandlers(store, resolver, notifier, log)
	return &fixture{
		store:      store,
		dispatcher: NewDispatcher(handlers, metrics, log),
		metrics:    metrics,
		notifier:   notifier,
	}
}

func (f *fixture) dispatch(t *testing.T, payload string) Outcome {
	t.Helper()
	return f.dispatcher.DispatchRaw(context.Background(), []byte(payload))
}

func (f *fixture) record(t *testing.T, customerID string) *domain.Record {
	t.Helper()
	rec, err := f.store.FindOne(context.Background(), domain.ByCustomerID(customerID))
	require.NoError(t, err)
	return rec
}

func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})

	assert.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))
	assert.Equal(t, 1, f.store.Len())
	rec := f.record(t, "cus_1")
	require.NotNil(t, rec)
	assert.Equal(t, "a@b.com", rec.Email)
	assert.Equal(t, "A", rec.Name)

	assert.Equal(t, OutcomeOK, f.dispatch(t, subUpdatedEvent))
	rec = f.record(t, "cus_1")
	require.NotNil(t, rec.Plan)
	assert.Equal(t, domain.PlanState{SubscriptionID: "sub_1", PriceID: "price_1", ProductID: "prod_1", PlanName: "Pro", PlanPrice: 1000}, *rec.Plan)

	assert.Equal(t, OutcomeOK, f.dispatch(t, subDeletedEvent))
	rec = f.record(t, "cus_1")
	require.NotNil(t, rec)
	assert.Nil(t, rec.Plan)

	assert.Equal(t, OutcomeOK, f.dispatch(t, customerDeletedEvt))
	assert.Nil(t, f.record(t, "cus_1"))
	assert.Equal(t, 0, f.store.Len())

	kinds := make([]domain.ChangeKind, 0, len(f.notifier.changes))
	for _, c := range f.notifier.changes {
		kinds = append(kinds, c.Kind)
		assert.False(t, c.OccurredAt.IsZero())
	}
	assert.Equal(t, []domain.ChangeKind{domain.ChangeCreated, domain.ChangePlanSet, domain.ChangePlanCleared, domain.ChangeDeleted}, kinds)
}

func TestSubscriptionUpdated_Idempotent(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	require.Equal(t, OutcomeOK, f.dispatch(t, subUpdatedEvent))
	once := f.record(t, "cus_1")

	require.Equal(t, OutcomeOK, f.dispatch(t, subUpdatedEvent))
	twice := f.record(t, "cus_1")

	assert.Equal(t, once.Plan, twice.Plan)
	assert.Equal(t, once.Email, twice.Email)
	assert.Equal(t, once.Name, twice.Name)
}

func TestOutOfOrderEventsAreNoops(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})

	assert.Equal(t, OutcomeNoop, f.dispatch(t, `{"type":"customer.updated","data":{"object":{"id":"cus_x","email":"x@b.com","name":"X"}}}`))
	assert.Equal(t, OutcomeNoop, f.dispatch(t, `{"type":"customer.deleted","data":{"object":{"id":"cus_x"}}}`))
	assert.Equal(t, OutcomeNoop, f.dispatch(t, `{"type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_x","plan":{"id":"p","product":"prod","amount":1},"__testProduct":{"name":"Pro"}}}}`))
	assert.Equal(t, OutcomeNoop, f.dispatch(t, `{"type":"customer.subscription.deleted","data":{"object":{"customer":"cus_x"}}}`))

	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.notifier.changes)
}

func TestUnknownEventTolerance(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))
	before := f.record(t, "cus_1")

	assert.Equal(t, OutcomeIgnored, f.dispatch(t, `{"type":"invoice.paid","data":{"object":{"id":"in_1","customer":"cus_1"}}}`))

	assert.Equal(t, before, f.record(t, "cus_1"))
	assert.Equal(t, 1, f.metrics.events["unknown:ignored"])
}

func TestMalformedPayloadIsCounted(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	assert.Equal(t, OutcomeFailed, f.dispatch(t, `not json`))
	assert.Equal(t, 1, f.metrics.parse)
}

func TestCustomerCreated_DuplicateEmailReported(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	outcome := f.dispatch(t, `{"type":"customer.created","data":{"object":{"id":"cus_2","email":"a@b.com","name":"B"}}}`)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 1, f.metrics.events["customer.created:failed"])

	// следующее событие обрабатывается как обычно
	assert.Equal(t, OutcomeOK, f.dispatch(t, subUpdatedEvent))
}

func TestCustomerUpdated_SetsEmailAndName(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	assert.Equal(t, OutcomeOK, f.dispatch(t, `{"type":"customer.updated","data":{"object":{"id":"cus_1","email":"new@b.com","name":"New"}}}`))
	rec := f.record(t, "cus_1")
	assert.Equal(t, "new@b.com", rec.Email)
	assert.Equal(t, "New", rec.Name)
}

func TestSubscriptionChanged_SnapshotMissingFails(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	outcome := f.dispatch(t, `{"type":"customer.subscription.created","data":{"object":{"id":"sub_1","customer":"cus_1","plan":{"id":"p","product":"prod","amount":1}}}}`)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Nil(t, f.record(t, "cus_1").Plan)
}

func TestSubscriptionChanged_MissingPlanFails(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	outcome := f.dispatch(t, `{"type":"customer.subscription.created","data":{"object":{"id":"sub_1","customer":"cus_1","__testProduct":{"name":"Pro"}}}}`)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Nil(t, f.record(t, "cus_1").Plan)
}

func TestSubscriptionChanged_StripeResolver(t *testing.T) {
	products := &fakeProducts{}
	f := newFixture(t, NewStripeProductResolver(products))
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	assert.Equal(t, OutcomeOK, f.dispatch(t, subUpdatedEvent))
	assert.Equal(t, 1, products.calls)
	assert.Equal(t, "Remote prod_1", f.record(t, "cus_1").Plan.PlanName)
}

func TestSubscriptionChanged_ResolverFailureLeavesRecord(t *testing.T) {
	products := &fakeProducts{err: errors.New("stripe down")}
	f := newFixture(t, NewStripeProductResolver(products))
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	assert.Equal(t, OutcomeFailed, f.dispatch(t, subUpdatedEvent))
	assert.Nil(t, f.record(t, "cus_1").Plan)
}

func TestHandlerPanicIsContained(t *testing.T) {
	f := newFixture(t, NewStripeProductResolver(&fakeProducts{panic: true}))
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	assert.NotPanics(t, func() {
		assert.Equal(t, OutcomeFailed, f.dispatch(t, subUpdatedEvent))
	})
	assert.Equal(t, OutcomeOK, f.dispatch(t, subDeletedEvent))
}

func TestNotifierFailureDoesNotFailHandler(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	f.notifier.err = errors.New("broker down")

	assert.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))
	assert.NotNil(t, f.record(t, "cus_1"))
}

func TestPlanGroupAtomicUnderConcurrentEvents(t *testing.T) {
	f := newFixture(t, SnapshotProductResolver{})
	require.Equal(t, OutcomeOK, f.dispatch(t, createdEvent))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				f.dispatch(t, subUpdatedEvent)
			} else {
				f.dispatch(t, subDeletedEvent)
			}
		}(i)
	}
	wg.Wait()

	rec := f.record(t, "cus_1")
	if rec.Plan != nil {
		assert.NotEmpty(t, rec.Plan.SubscriptionID)
		assert.NotEmpty(t, rec.Plan.PriceID)
		assert.NotEmpty(t, rec.Plan.ProductID)
		assert.NotEmpty(t, rec.Plan.PlanName)
		assert.NotZero(t, rec.Plan.PlanPrice)
	}
}

func TestNewProductResolver(t *testing.T) {
	r, err := NewProductResolver(ProductSourceSnapshot, nil)
	require.NoError(t, err)
	assert.IsType(t, SnapshotProductResolver{}, r)

	r, err = NewProductResolver("", &fakeProducts{})
	require.NoError(t, err)
	assert.IsType(t, &StripeProductResolver{}, r)

	_, err = NewProductResolver(ProductSourceStripe, nil)
	assert.Error(t, err)

	_, err = NewProductResolver("cache", &fakeProducts{})
	assert.Error(t, err)
}
