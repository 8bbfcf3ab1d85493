package task

import (
	"strings"
	"time"

	"github.com/osqazi/AI-Employee-FTE/internal/util"
)

// Source names.
const (
	SourceWhatsApp    = "whatsapp"
	SourceGmail       = "gmail"
	SourceFileDrop    = "file_drop"
	SourceCLI         = "cli"
	SourceCrossDomain = "cross_domain_trigger"
	SourceWatchdog    = "watchdog"
)

// Category returns the upper-case id prefix for a task source.
func Category(source string) string {
	switch source {
	case SourceCrossDomain:
		return "CROSSDOMAIN"
	case SourceWatchdog:
		return "ALERT"
	}
	s := strings.ToUpper(util.Slug(source, '_'))
	if s == "" {
		return "TASK"
	}
	return s
}

// NewID builds {CATEGORY}_{trigger}_{yyyymmdd_HHMMSS}.
func NewID(category, trigger string, at time.Time) string {
	trigger = util.Slug(trigger, '_')
	if trigger == "" {
		trigger = "none"
	}
	return category + "_" + trigger + "_" + util.Stamp(at)
}

// withSuffix extends an id that is already taken.
func withSuffix(id string) (string, error) {
	suffix, err := util.GenerateShortID()
	if err != nil {
		return "", err
	}
	return id + "_" + suffix, nil
}
