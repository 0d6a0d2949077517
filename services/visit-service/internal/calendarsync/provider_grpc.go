//go:build protogen

package calendarsync

import (
	"context"
	"time"

	"github.com/arefin-khan/visitgate/libs/grpcx"
	calendarv1 "github.com/arefin-khan/visitgate/protos/gen/calendar/v1"
)

type grpcProvider struct {
	client calendarv1.CalendarBridgeClient
}

// NewProvider dials the calendar bridge when an address is configured.
// An empty address disables external busy lookups.
func NewProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &grpcProvider{client: calendarv1.NewCalendarBridgeClient(conn)}, nil
}

func (p *grpcProvider) Busy(ctx context.Context, hostName string, from, to time.Time) ([]BusyWindow, error) {
	resp, err := p.client.GetBusyWindows(ctx, &calendarv1.BusyWindowsRequest{
		HostName: hostName,
		FromUtc:  from.UTC().Format(time.RFC3339),
		ToUtc:    to.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	var out []BusyWindow
	for _, w := range resp.GetWindows() {
		start, err := time.Parse(time.RFC3339, w.GetStartUtc())
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, w.GetEndUtc())
		if err != nil {
			continue
		}
		if end.After(start) {
			out = append(out, BusyWindow{Start: start, End: end})
		}
	}
	return out, nil
}
