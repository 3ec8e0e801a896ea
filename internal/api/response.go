package api

import (
	"time"

	"github.com/Checker-Finance/yield-aggregator/pkg/model"
)

// ListResponse wraps one list from a single snapshot generation.
type ListResponse struct {
	SnapshotID  string         `json:"snapshot_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Count       int            `json:"count"`
	Records     []model.Record `json:"records"`
}

// AverageResponse lists trailing APY averages since Since.
type AverageResponse struct {
	Days     int                `json:"days"`
	Since    time.Time          `json:"since"`
	Count    int                `json:"count"`
	Averages []model.AverageAPY `json:"averages"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
