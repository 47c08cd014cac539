// Package validator recomputes expected per-category totals from raw data
// and compares them with the stored daily summaries.
//
// A Validator never writes. It may run while ingestion is writing and then
// reports a mismatch instead of blocking:
//
//	v := validator.New(validator.Config{Location: loc}, st, cat, det, log)
//	reports, err := v.Validate(ctx, "2024-05-01")
//	for _, r := range reports {
//	    if !r.IsConsistent {
//	        // repair or re-aggregate the date
//	    }
//	}
package validator

import (
	"context"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// DefaultToleranceSec is the largest |pie - detail| difference still
// reported as consistent.
const DefaultToleranceSec = 10

// Validator produces consistency reports.
type Validator interface {
	// Validate returns one report per category of date: every live
	// category plus any category id found in the date's data.
	Validate(ctx context.Context, date string) ([]usage.ValidationReport, error)
}

// Config contains validator configuration.
type Config struct {
	// Location is the time zone of dates.
	// Default: time.Local.
	Location *time.Location

	// ToleranceSec is the consistency tolerance. Zero demands exact
	// agreement.
	// Default (nil): DefaultToleranceSec.
	ToleranceSec *int
}
