// Package calendarsync bridges a host's external calendar into the
// engine. When a bridge is configured, its busy intervals show up as
// soft-conflict warnings at booking time; the engine never writes to the
// external calendar.
package calendarsync

import (
	"context"
	"time"
)

// BusyWindow is an externally committed interval on a host's calendar.
type BusyWindow struct {
	Start time.Time
	End   time.Time
}

type Provider interface {
	Busy(ctx context.Context, hostName string, from, to time.Time) ([]BusyWindow, error)
}
