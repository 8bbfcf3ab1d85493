package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osqazi/AI-Employee-FTE/internal/task"
)

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name       string
		task       *task.Task
		want       bool
		wantReason string
	}{
		{
			name:       "flag set",
			task:       &task.Task{RequiresApproval: true},
			want:       true,
			wantReason: "flagged for approval at creation",
		},
		{
			name:       "critical priority",
			task:       &task.Task{Priority: "Critical", Body: "watchdog alert"},
			want:       true,
			wantReason: `priority "Critical"`,
		},
		{
			name:       "keyword in body",
			task:       &task.Task{Priority: task.PriorityNormal, Body: "Please sign the Contract"},
			want:       true,
			wantReason: `matched keyword "contract"`,
		},
		{
			name:       "keyword in type",
			task:       &task.Task{Type: "invoice", Body: "see attached"},
			want:       true,
			wantReason: `matched keyword "invoice"`,
		},
		{
			name:       "hitl marker",
			task:       &task.Task{Body: "needs HITL review"},
			want:       true,
			wantReason: `matched keyword "hitl"`,
		},
		{
			name: "ordinary task",
			task: &task.Task{Type: "achievement", Priority: task.PriorityNormal, Body: "We launched the site!"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.RequiresApproval(tt.task))
			assert.Equal(t, tt.wantReason, p.Reason(tt.task))
		})
	}
}

func TestPolicy_Custom(t *testing.T) {
	p := Policy{Keywords: []string{"Refund"}}

	assert.True(t, p.RequiresApproval(&task.Task{Body: "issue a refund"}))
	assert.False(t, p.RequiresApproval(&task.Task{Body: "invoice", Priority: task.PriorityHigh}))
}
