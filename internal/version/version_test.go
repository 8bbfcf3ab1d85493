package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	for _, want := range []string{Version, CommitSHA, BuildDate} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in version string, got: %s", want, got)
		}
	}
}
