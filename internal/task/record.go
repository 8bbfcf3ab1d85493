package task

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

// header is the YAML frontmatter of a task record.
type header struct {
	ID               string            `yaml:"id"`
	Source           string            `yaml:"source"`
	Type             string            `yaml:"type"`
	TriggerSource    string            `yaml:"trigger_source,omitempty"`
	BusinessAction   string            `yaml:"business_action,omitempty"`
	Skill            string            `yaml:"skill,omitempty"`
	Server           string            `yaml:"mcp_server,omitempty"`
	Status           Status            `yaml:"status"`
	Priority         string            `yaml:"priority"`
	RequiresApproval bool              `yaml:"requires_approval"`
	SignalID         string            `yaml:"signal_id,omitempty"`
	Created          time.Time         `yaml:"created"`
	Updated          time.Time         `yaml:"updated"`
	Fields           map[string]string `yaml:"fields,omitempty"`
	Notes            []Note            `yaml:"notes"`
}

// Marshal renders a task as a markdown record with YAML frontmatter.
func Marshal(t *Task) ([]byte, error) {
	h := header{
		ID:               t.ID,
		Source:           t.Source,
		Type:             t.Type,
		TriggerSource:    t.TriggerSource,
		BusinessAction:   t.BusinessAction,
		Skill:            t.Skill,
		Server:           t.Server,
		Status:           t.Status,
		Priority:         t.Priority,
		RequiresApproval: t.RequiresApproval,
		SignalID:         t.SignalID,
		Created:          t.Created.UTC(),
		Updated:          t.Updated.UTC(),
		Fields:           t.Fields,
		Notes:            t.Notes,
	}
	if h.Notes == nil {
		h.Notes = []Note{}
	}

	data, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task header: %w", err)
	}

	return vault.JoinFrontmatter(data, t.Body), nil
}

// Unmarshal parses a task record. Any structural problem is reported as ErrMalformed.
func Unmarshal(data []byte) (*Task, error) {
	head, body, err := vault.SplitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var h header
	if err := yaml.Unmarshal([]byte(head), &h); err != nil {
		return nil, fmt.Errorf("%w: invalid header: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(h.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if !h.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformed, h.Status)
	}

	return &Task{
		ID:               h.ID,
		Source:           h.Source,
		Type:             h.Type,
		TriggerSource:    h.TriggerSource,
		BusinessAction:   h.BusinessAction,
		Skill:            h.Skill,
		Server:           h.Server,
		Status:           h.Status,
		Priority:         h.Priority,
		RequiresApproval: h.RequiresApproval,
		SignalID:         h.SignalID,
		Created:          h.Created,
		Updated:          h.Updated,
		Fields:           h.Fields,
		Notes:            h.Notes,
		Body:             body,
	}, nil
}
