package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	stripego "github.com/stripe/stripe-go/v78"

	"github.com/Dhoini/billing-sync/internal/domain"
	"github.com/Dhoini/billing-sync/internal/service"
	"github.com/Dhoini/billing-sync/internal/stripe"
	"github.com/Dhoini/billing-sync/pkg/logger"
	"github.com/Dhoini/billing-sync/pkg/req"
	"github.com/Dhoini/billing-sync/pkg/res"
)

// isoDatePattern формат дат, который принимает pay-invoices
var isoDatePattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}T[0-9]{2}:[0-9]{2}:[0-9].+Z$`)

const invalidDateMessage = `Invalid "startDate" or "endDate". example date "2023-02-15T00:00:00Z"`

// Subscriptions операции над подписками, которые нужны обработчику
type Subscriptions interface {
	Subscribe(ctx context.Context, email, name string) (*service.SubscribeResult, error)
	GetActiveSubscription(ctx context.Context, email string) (*service.ActiveSubscription, error)
}

// Invoices операции над счетами, которые нужны обработчику
type Invoices interface {
	GenerateInvoice(ctx context.Context, email string, amount int64) (*stripego.Invoice, error)
	PayInvoices(ctx context.Context, in service.PayInvoicesInput) (*service.PayInvoicesResult, error)
}

// BillingHandler обрабатывает клиентские запросы по подпискам и счетам.
type BillingHandler struct {
	subscriptions Subscriptions
	invoices      Invoices
	log           *logger.Logger
}

// NewBillingHandler создает новый экземпляр BillingHandler.
func NewBillingHandler(subscriptions Subscriptions, invoices Invoices, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		subscriptions: subscriptions,
		invoices:      invoices,
		log:           log,
	}
}

// --- DTO ---

type SubscribeRequest struct {
	Email string `json:"email" validate:"required"`
	Name  string `json:"name" validate:"required"`
}

type ActiveSubscriptionRequest struct {
	Email string `json:"email" validate:"required"`
}

// GenerateInvoiceRequest сумма приходит как произвольное JSON-значение и проверяется вручную
type GenerateInvoiceRequest struct {
	Email         string `json:"email" validate:"required"`
	InvoiceAmount any    `json:"invoiceAmount"`
}

type PayInvoicesRequest struct {
	Email          string `json:"email" validate:"required"`
	StartDate      string `json:"startDate" validate:"required"`
	EndDate        string `json:"endDate" validate:"required"`
	SearchStrategy string `json:"searchStrategy" validate:"required"`
}

// --- Обработчики ---

// Subscribe обрабатывает POST /subscribe
func (h *BillingHandler) Subscribe(c *gin.Context) {
	body, err := req.HandleBody[SubscribeRequest](c.Request.Body)
	if err != nil {
		h.reject(c, `Missing "email" or "name"`, err)
		return
	}

	result, err := h.subscriptions.Subscribe(c.Request.Context(), body.Email, body.Name)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			h.reject(c, fmt.Sprintf("Email %q already exists", body.Email), err)
			return
		}
		h.fail(c, "Subscribe", err)
		return
	}

	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// GetActiveSubscription обрабатывает POST /get-active-subscription
func (h *BillingHandler) GetActiveSubscription(c *gin.Context) {
	body, err := req.HandleBody[ActiveSubscriptionRequest](c.Request.Body)
	if err != nil {
		h.reject(c, `Missing "email"`, err)
		return
	}

	result, err := h.subscriptions.GetActiveSubscription(c.Request.Context(), body.Email)
	if err != nil {
		h.fail(c, "GetActiveSubscription", err)
		return
	}

	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// GenerateInvoice обрабатывает POST /generate-invoice
func (h *BillingHandler) GenerateInvoice(c *gin.Context) {
	body, err := req.HandleBody[GenerateInvoiceRequest](c.Request.Body)
	if err != nil || body.InvoiceAmount == nil {
		h.reject(c, `Missing "email" or "invoiceAmount"`, err)
		return
	}

	amount, ok := body.InvoiceAmount.(float64)
	if !ok || !isWholeCents(amount) || amount < service.MinInvoiceAmount {
		h.reject(c, fmt.Sprintf(`"invoiceAmount" must be a number > %d`, service.MinInvoiceAmount), nil)
		return
	}

	inv, err := h.invoices.GenerateInvoice(c.Request.Context(), body.Email, int64(amount))
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			h.reject(c, fmt.Sprintf("Email does not exists email=%q", body.Email), err)
			return
		}
		h.fail(c, "GenerateInvoice", err)
		return
	}

	res.JsonResponse(c.Writer, gin.H{"invoice": inv}, http.StatusOK)
}

// PayInvoices обрабатывает POST /pay-invoices
func (h *BillingHandler) PayInvoices(c *gin.Context) {
	body, err := req.HandleBody[PayInvoicesRequest](c.Request.Body)
	if err != nil {
		h.reject(c, `Missing "email", "startDate", "endDate" or "searchStrategy"`, err)
		return
	}

	start, startErr := parseISODate(body.StartDate)
	end, endErr := parseISODate(body.EndDate)
	if startErr != nil || endErr != nil {
		h.reject(c, invalidDateMessage, errors.Join(startErr, endErr))
		return
	}

	result, err := h.invoices.PayInvoices(c.Request.Context(), service.PayInvoicesInput{
		Email:          body.Email,
		StartDate:      start,
		EndDate:        end,
		SearchStrategy: stripe.SearchField(body.SearchStrategy),
	})
	if err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			h.reject(c, fmt.Sprintf("Email does not exist %q", body.Email), err)
			return
		}
		h.fail(c, "PayInvoices", err)
		return
	}

	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// isWholeCents сумма в центах должна быть целой и помещаться в int64
func isWholeCents(amount float64) bool {
	return amount == math.Trunc(amount) && amount >= math.MinInt64 && amount < math.MaxInt64
}

func parseISODate(s string) (time.Time, error) {
	if !isoDatePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("date %q does not match ISO-8601 UTC format", s)
	}
	return time.Parse(time.RFC3339, s)
}

// reject отвечает 422 с сообщением для клиента
func (h *BillingHandler) reject(c *gin.Context, message string, cause error) {
	h.log.Warnw("Request rejected", "path", c.FullPath(), "message", message, "error", cause)
	res.ValidationError(c.Writer, message)
	c.Abort()
}

// fail отвечает 422 для клиентских ошибок сервиса и 500 для всех остальных
func (h *BillingHandler) fail(c *gin.Context, operation string, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		h.reject(c, verr.Message, err)
		return
	}
	if domain.IsClientError(err) {
		h.reject(c, err.Error(), err)
		return
	}

	h.log.Errorw("Service call failed", "operation", operation, "error", err)
	res.InternalError(c.Writer)
	c.Abort()
}
