package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/gofiber/fiber/v2"
)

type DispatchService interface {
	Run(ctx context.Context) (*domain.DispatchRunResult, error)
	DispatchOne(ctx context.Context, invoiceID string) (*domain.SendAttemptRecord, error)
}

type DispatchHandler struct {
	service DispatchService
}

func NewDispatchHandler(service DispatchService) (*DispatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &DispatchHandler{service: service}, nil
}

func RegisterDispatchRoutes(router fiber.Router, service DispatchService) error {
	h, err := NewDispatchHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/dispatch/run", h.RunDispatch)
	v1.Post("/dispatch/invoices/:id", h.DispatchInvoice)

	return nil
}

type attemptResponse struct {
	ID                string    `json:"id"`
	InvoiceID         string    `json:"invoiceId"`
	CustomerName      string    `json:"customerName"`
	CustomerPhone     string    `json:"customerPhone"`
	DueDate           string    `json:"dueDate"`
	Amount            string    `json:"amount"`
	Message           string    `json:"message,omitempty"`
	Outcome           string    `json:"outcome"`
	Attempts          int       `json:"attempts"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	FailureDetail     *string   `json:"failureDetail,omitempty"`
	AttemptedAt       time.Time `json:"attemptedAt"`
}

// RunDispatch triggers a full dispatch pass synchronously. A pass over a
// realistic invoice set takes seconds to minutes; the caller gets the
// final counters rather than a job handle.
func (h *DispatchHandler) RunDispatch(c *fiber.Ctx) error {
	result, err := h.service.Run(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *DispatchHandler) DispatchInvoice(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, err := h.service.DispatchOne(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toAttemptResponse(record))
}

func toAttemptResponses(records []domain.SendAttemptRecord) []attemptResponse {
	responses := make([]attemptResponse, 0, len(records))
	for _, record := range records {
		rec := record
		responses = append(responses, toAttemptResponse(&rec))
	}
	return responses
}

func toAttemptResponse(record *domain.SendAttemptRecord) attemptResponse {
	if record == nil {
		return attemptResponse{}
	}

	return attemptResponse{
		ID:                record.ID,
		InvoiceID:         record.InvoiceID,
		CustomerName:      record.CustomerName,
		CustomerPhone:     record.CustomerPhone,
		DueDate:           record.DueDate,
		Amount:            record.Amount.StringFixed(2),
		Message:           record.Message,
		Outcome:           record.Outcome.String(),
		Attempts:          record.Attempts,
		ProviderMessageID: record.ProviderMessageID,
		FailureDetail:     record.FailureDetail,
		AttemptedAt:       record.AttemptedAt,
	}
}
