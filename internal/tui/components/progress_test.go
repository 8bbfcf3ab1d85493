package components

import (
	"strings"
	"testing"
)

func TestProgress_View(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		total      int
		wantBar    string
		wantSuffix string
	}{
		{"none done", 0, 4, "□□□□□□□□", "0/4 steps"},
		{"half done", 2, 4, "■■■■□□□□", "2/4 steps"},
		{"all done", 4, 4, "■■■■■■■■", "4/4 steps"},
		{"over total clamps", 9, 4, "■■■■■■■■", "4/4 steps"},
		{"negative clamps", -1, 4, "□□□□□□□□", "0/4 steps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewProgress(tt.current, tt.total, 8).View()
			if !strings.HasPrefix(result, tt.wantBar) {
				t.Errorf("expected bar %s, got: %s", tt.wantBar, result)
			}
			if !strings.HasSuffix(result, tt.wantSuffix) {
				t.Errorf("expected suffix %q, got: %s", tt.wantSuffix, result)
			}
		})
	}
}

func TestProgress_View_Invalid(t *testing.T) {
	if got := NewProgress(1, 0, 8).View(); got != "" {
		t.Errorf("expected empty string for zero total, got: %s", got)
	}
	if got := NewProgress(1, 4, 0).View(); got != "" {
		t.Errorf("expected empty string for zero width, got: %s", got)
	}
}
