package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// SnapshotReader is the read side of the snapshot publisher.
type SnapshotReader interface {
	Query(q model.Query) model.View
	Initialized() bool
}

// AverageReader serves trailing APY averages from recorded history.
type AverageReader interface {
	TrailingAverages(ctx context.Context, since time.Time) ([]model.AverageAPY, error)
}

const (
	DefaultAverageDays = 30
	MaxAverageDays     = 365
)

type Handler struct {
	Logger    *zap.Logger
	Snapshots SnapshotReader
	// Averages is nil when no history store is configured.
	Averages AverageReader
	now      func() time.Time
}

func NewHandler(logger *zap.Logger, snapshots SnapshotReader) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Logger: logger, Snapshots: snapshots, now: time.Now}
}

// ListAssets serves single-asset records.
func (h *Handler) ListAssets(c *fiber.Ctx) error {
	return h.list(c, func(v model.View) []model.Record { return v.Assets })
}

// ListPairs serves pair records.
func (h *Handler) ListPairs(c *fiber.Ctx) error {
	return h.list(c, func(v model.View) []model.Record { return v.Pairs })
}

// ListRecords serves the combined view.
func (h *Handler) ListRecords(c *fiber.Ctx) error {
	return h.list(c, func(v model.View) []model.Record { return v.Combined })
}

// ListAverages serves the trailing mean APY per series over `days` days.
func (h *Handler) ListAverages(c *fiber.Ctx) error {
	if h.Averages == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "history store not configured"})
	}

	days := DefaultAverageDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxAverageDays {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "days must be an integer in [1, 365]"})
		}
		days = n
	}

	q, err := parseQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	since := h.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	averages, err := h.Averages.TrailingAverages(c.UserContext(), since)
	if err != nil {
		h.Logger.Error("api.averages_failed", zap.Int("days", days), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "history unavailable"})
	}

	out := make([]model.AverageAPY, 0, len(averages))
	for _, a := range averages {
		if q.Match(model.Record{Network: a.Network, Protocol: a.Protocol, Assets: a.Assets, APY: a.APYAverage}) {
			out = append(out, a)
		}
	}
	return c.Status(fiber.StatusOK).JSON(AverageResponse{
		Days:     days,
		Since:    since,
		Count:    len(out),
		Averages: out,
	})
}

func (h *Handler) list(c *fiber.Ctx, pick func(model.View) []model.Record) error {
	q, err := parseQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	view := h.Snapshots.Query(q)
	records := pick(view)
	return c.Status(fiber.StatusOK).JSON(ListResponse{
		SnapshotID:  view.SnapshotID.String(),
		GeneratedAt: view.GeneratedAt,
		Count:       len(records),
		Records:     records,
	})
}

func parseQuery(c *fiber.Ctx) (model.Query, error) {
	var q model.Query
	if raw := c.Query("asset"); raw != "" {
		a, ok := model.ParseAsset(raw)
		if !ok {
			return q, fiber.NewError(fiber.StatusBadRequest, "unknown asset: "+raw)
		}
		q.Asset = &a
	}
	if raw := c.Query("protocol"); raw != "" {
		p, ok := model.ParseProtocol(raw)
		if !ok {
			return q, fiber.NewError(fiber.StatusBadRequest, "unknown protocol: "+raw)
		}
		q.Protocol = &p
	}
	if raw := c.Query("stable"); raw != "" {
		stable, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fiber.NewError(fiber.StatusBadRequest, "invalid stable flag: "+raw)
		}
		q.Stable = &stable
	}
	return q, nil
}
