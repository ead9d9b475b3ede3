package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type InvoiceService interface {
	Create(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error)
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	List(ctx context.Context, params repository.InvoiceListParams) ([]domain.Invoice, int64, error)
	Update(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error)
	MarkPaid(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type InvoiceHandler struct {
	service InvoiceService
}

func NewInvoiceHandler(service InvoiceService) (*InvoiceHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("invoice service is required")
	}
	return &InvoiceHandler{service: service}, nil
}

func RegisterInvoiceRoutes(router fiber.Router, service InvoiceService) error {
	h, err := NewInvoiceHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/invoices", h.CreateInvoice)
	v1.Get("/invoices", h.ListInvoices)
	v1.Get("/invoices/:id", h.GetInvoice)
	v1.Put("/invoices/:id", h.UpdateInvoice)
	v1.Post("/invoices/:id/paid", h.MarkInvoicePaid)
	v1.Delete("/invoices/:id", h.DeleteInvoice)

	return nil
}

type invoiceRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	DueDate       string `json:"dueDate"`
	Amount        string `json:"amount"`
	Status        string `json:"status,omitempty"`
}

type invoiceResponse struct {
	ID            string    `json:"id"`
	CustomerName  string    `json:"customerName"`
	CustomerPhone string    `json:"customerPhone"`
	DueDate       string    `json:"dueDate"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

type listInvoicesResponse struct {
	Data []invoiceResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *InvoiceHandler) CreateInvoice(c *fiber.Ctx) error {
	var req invoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoice, err := requestToDomainInvoice(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), &invoice)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toInvoiceResponse(created))
}

func (h *InvoiceHandler) GetInvoice(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	invoice, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toInvoiceResponse(invoice))
}

func (h *InvoiceHandler) ListInvoices(c *fiber.Ctx) error {
	params, err := parseInvoiceListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	invoices, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listInvoicesResponse{
		Data: toInvoiceResponses(invoices),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *InvoiceHandler) UpdateInvoice(c *fiber.Ctx) error {
	var req invoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	invoice, err := requestToDomainInvoice(req)
	if err != nil {
		return toHTTPError(err)
	}
	invoice.ID = strings.TrimSpace(c.Params("id"))

	updated, err := h.service.Update(c.Context(), &invoice)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toInvoiceResponse(updated))
}

func (h *InvoiceHandler) MarkInvoicePaid(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.MarkPaid(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"invoiceId": id,
		"status":    domain.InvoiceStatusPaid.String(),
	})
}

func (h *InvoiceHandler) DeleteInvoice(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Delete(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseInvoiceListParams(c *fiber.Ctx) (repository.InvoiceListParams, error) {
	params := repository.InvoiceListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.InvoiceListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.InvoiceListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseInvoiceStatusFromString(rawStatus)
		if err != nil {
			return repository.InvoiceListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func requestToDomainInvoice(req invoiceRequest) (domain.Invoice, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("%w: amount must be a decimal number", domain.ErrValidation)
	}

	invoice := domain.Invoice{
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		DueDate:       strings.TrimSpace(req.DueDate),
		Amount:        amount,
	}

	if rawStatus := strings.TrimSpace(req.Status); rawStatus != "" {
		status, err := domain.ParseInvoiceStatusFromString(rawStatus)
		if err != nil {
			return domain.Invoice{}, err
		}
		invoice.Status = status
	}

	return invoice, nil
}

func toInvoiceResponses(invoices []domain.Invoice) []invoiceResponse {
	responses := make([]invoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		inv := invoice
		responses = append(responses, toInvoiceResponse(&inv))
	}
	return responses
}

func toInvoiceResponse(invoice *domain.Invoice) invoiceResponse {
	if invoice == nil {
		return invoiceResponse{}
	}

	return invoiceResponse{
		ID:            invoice.ID,
		CustomerName:  invoice.CustomerName,
		CustomerPhone: invoice.CustomerPhone,
		DueDate:       invoice.DueDate,
		Amount:        invoice.Amount.StringFixed(2),
		Status:        invoice.Status.String(),
		CreatedAt:     invoice.CreatedAt,
		UpdatedAt:     invoice.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidDueDate):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRunInProgress):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
