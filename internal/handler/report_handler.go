package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/billingdesk/invoice-notifier/internal/domain"
	"github.com/billingdesk/invoice-notifier/internal/repository"
	"github.com/gofiber/fiber/v2"
)

type ReportService interface {
	History(ctx context.Context, params repository.HistoryListParams) ([]domain.SendAttemptRecord, int64, error)
	Statistics(ctx context.Context) (*domain.Statistics, error)
	DashboardSummary(ctx context.Context) (*domain.DashboardSummary, error)
}

type ReportHandler struct {
	service ReportService
}

func NewReportHandler(service ReportService) (*ReportHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("report service is required")
	}
	return &ReportHandler{service: service}, nil
}

func RegisterReportRoutes(router fiber.Router, service ReportService) error {
	h, err := NewReportHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/history", h.ListHistory)
	v1.Get("/statistics", h.GetStatistics)
	v1.Get("/dashboard/summary", h.GetDashboardSummary)

	return nil
}

type listHistoryResponse struct {
	Data []attemptResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

func (h *ReportHandler) ListHistory(c *fiber.Ctx) error {
	params, err := parseHistoryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.service.History(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listHistoryResponse{
		Data: toAttemptResponses(records),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *ReportHandler) GetStatistics(c *fiber.Ctx) error {
	stats, err := h.service.Statistics(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *ReportHandler) GetDashboardSummary(c *fiber.Ctx) error {
	summary, err := h.service.DashboardSummary(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

func parseHistoryListParams(c *fiber.Ctx) (repository.HistoryListParams, error) {
	params := repository.HistoryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.HistoryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.HistoryListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawOutcome := strings.TrimSpace(c.Query("outcome")); rawOutcome != "" {
		outcome, err := domain.ParseOutcomeFromString(rawOutcome)
		if err != nil {
			return repository.HistoryListParams{}, err
		}
		params.Outcome = &outcome
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.HistoryListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.HistoryListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}
