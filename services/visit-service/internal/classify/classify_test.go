package classify

import (
	"testing"
	"time"

	"github.com/arefin-khan/visitgate/services/visit-service/internal/model"
)

func TestKindBoundary(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		ahead time.Duration
		want  model.Type
	}{
		{"just under two hours", 119 * time.Minute, model.TypeWalkIn},
		{"exactly two hours", 120 * time.Minute, model.TypeWalkIn},
		{"just over two hours", 121 * time.Minute, model.TypePrePlanned},
		{"immediate", 0, model.TypeWalkIn},
		{"next week", 7 * 24 * time.Hour, model.TypePrePlanned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Kind(now, now.Add(tc.ahead))
			if got != tc.want {
				t.Fatalf("Kind(now, now+%s) = %s, want %s", tc.ahead, got, tc.want)
			}
		})
	}
}
