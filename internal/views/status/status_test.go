package status

import (
	"strings"
	"testing"
	"time"
)

func TestView(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		model Model
		want  []string
	}{
		{
			name:  "offline never synced",
			model: Model{Width: 80},
			want:  []string{"○ Offline", "0 open alerts", "synced never"},
		},
		{
			name:  "live with open alerts",
			model: Model{Width: 80, Connected: true, Operator: "Lot Administrator", Unresolved: 3, SyncedAt: now.Add(-12 * time.Second)},
			want:  []string{"● Live", "Lot Administrator", "3 open alerts", "synced 12s ago"},
		},
		{
			name:  "minutes and error",
			model: Model{Width: 120, SyncedAt: now.Add(-5 * time.Minute), LastError: "HTTP 503"},
			want:  []string{"synced 5m ago", "HTTP 503"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.model.now = func() time.Time { return now }
			v := tt.model.View()
			for _, w := range tt.want {
				if !strings.Contains(v, w) {
					t.Errorf("view missing %q:\n%s", w, v)
				}
			}
		})
	}
}
