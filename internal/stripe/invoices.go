package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
)

const (
	invoiceCurrency     = "usd"
	invoiceDaysUntilDue = 30
)

// SearchField поле, по которому фильтруется диапазон дат счетов
type SearchField string

const (
	SearchByCreated SearchField = "created"
	SearchByDueDate SearchField = "due_date"
)

// Valid проверяет, что поле поддерживается
func (f SearchField) Valid() bool {
	return f == SearchByCreated || f == SearchByDueDate
}

// InvoiceQuery параметры выборки счетов. Границы диапазона включительные.
type InvoiceQuery struct {
	CustomerID string
	Status     stripe.InvoiceStatus
	Field      SearchField
	From       time.Time
	To         time.Time
}

// InvoiceIterator ленивый постраничный обход счетов.
// *invoice.Iter из stripe-go удовлетворяет этому интерфейсу.
type InvoiceIterator interface {
	Next() bool
	Invoice() *stripe.Invoice
	Err() error
}

// CreateInvoice создает черновик счета с одной позицией
func (sc *stripeClient) CreateInvoice(ctx context.Context, customerID string, amount int64) (inv *stripe.Invoice, err error) {
	defer sc.observe("CreateInvoice", time.Now(), &err)

	invParams := &stripe.InvoiceParams{
		Customer:         stripe.String(customerID),
		CollectionMethod: stripe.String(string(stripe.InvoiceCollectionMethodSendInvoice)),
		DaysUntilDue:     stripe.Int64(invoiceDaysUntilDue),
	}
	invParams.Context = ctx

	inv, err = sc.api.Invoices.New(invParams)
	if err != nil {
		logStripeError(sc.log, "CreateInvoice", err)
		return nil, fmt.Errorf("stripe: failed to create invoice: %w", err)
	}

	itemParams := &stripe.InvoiceItemParams{
		Customer: stripe.String(customerID),
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(invoiceCurrency),
		Invoice:  stripe.String(inv.ID),
	}
	itemParams.Context = ctx

	if _, err = sc.api.InvoiceItems.New(itemParams); err != nil {
		logStripeError(sc.log, "CreateInvoiceItem", err)
		return nil, fmt.Errorf("stripe: failed to add item to invoice %s: %w", inv.ID, err)
	}

	sc.log.Infow("Stripe invoice created", "invoiceID", inv.ID, "stripeCustomerID", customerID, "amount", amount)
	return inv, nil
}

// FinalizeInvoice финализирует черновик счета
func (sc *stripeClient) FinalizeInvoice(ctx context.Context, invoiceID string) (inv *stripe.Invoice, err error) {
	defer sc.observe("FinalizeInvoice", time.Now(), &err)

	params := &stripe.InvoiceFinalizeInvoiceParams{}
	params.Context = ctx

	inv, err = sc.api.Invoices.FinalizeInvoice(invoiceID, params)
	if err != nil {
		logStripeError(sc.log, "FinalizeInvoice", err)
		return nil, fmt.Errorf("stripe: failed to finalize invoice %s: %w", invoiceID, err)
	}
	return inv, nil
}

// ListInvoices возвращает ленивый итератор; страницы запрашиваются по мере обхода
func (sc *stripeClient) ListInvoices(ctx context.Context, query InvoiceQuery) InvoiceIterator {
	params := &stripe.InvoiceListParams{
		Customer: stripe.String(query.CustomerID),
	}
	params.Context = ctx
	if query.Status != "" {
		params.Status = stripe.String(string(query.Status))
	}

	rng := &stripe.RangeQueryParams{
		GreaterThanOrEqual: query.From.Unix(),
		LesserThanOrEqual:  query.To.Unix(),
	}
	switch query.Field {
	case SearchByDueDate:
		params.DueDateRange = rng
	default:
		params.CreatedRange = rng
	}

	return &observedInvoiceIter{
		inner:    sc.api.Invoices.List(params),
		sc:       sc,
		started:  time.Now(),
		customer: query.CustomerID,
	}
}

// PayInvoice оплачивает счет. Запись, поэтому без повторов.
func (sc *stripeClient) PayInvoice(ctx context.Context, invoiceID string) (inv *stripe.Invoice, err error) {
	defer sc.observe("PayInvoice", time.Now(), &err)

	params := &stripe.InvoicePayParams{}
	params.Context = ctx

	inv, err = sc.api.Invoices.Pay(invoiceID, params)
	if err != nil {
		logStripeError(sc.log, "PayInvoice", err)
		return nil, fmt.Errorf("stripe: failed to pay invoice %s: %w", invoiceID, err)
	}

	sc.log.Infow("Stripe invoice paid", "invoiceID", invoiceID, "amountPaid", inv.AmountPaid)
	return inv, nil
}

// observedInvoiceIter фиксирует метрику и лог по завершении обхода
type observedInvoiceIter struct {
	inner    InvoiceIterator
	sc       *stripeClient
	started  time.Time
	customer string
	done     bool
}

func (it *observedInvoiceIter) Next() bool {
	if it.inner.Next() {
		return true
	}
	if !it.done {
		it.done = true
		err := it.inner.Err()
		if err != nil {
			logStripeError(it.sc.log, "ListInvoices", err)
		}
		it.sc.observe("ListInvoices", it.started, &err)
	}
	return false
}

func (it *observedInvoiceIter) Invoice() *stripe.Invoice {
	return it.inner.Invoice()
}

func (it *observedInvoiceIter) Err() error {
	if err := it.inner.Err(); err != nil {
		return fmt.Errorf("stripe: failed to list invoices for %s: %w", it.customer, err)
	}
	return nil
}
