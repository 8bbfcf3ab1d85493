// Package trigger decides what kind of work a raw signal represents.
//
// Classification is a fixed, ordered keyword match followed by pattern-based
// field extraction. It has no side effects.
package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Classification is the result of classifying one piece of text.
type Classification struct {
	Trigger string
	Fields  map[string]string
	// Rule is the matched rule, nil when Trigger is None.
	Rule *Rule
}

// Matched reports whether a rule matched.
func (c Classification) Matched() bool {
	return c.Trigger != None
}

// Classifier evaluates an ordered rule table.
type Classifier struct {
	rules        []Rule
	keywords     [][]string
	amount       []*regexp.Regexp
	counterparty []*regexp.Regexp
}

// NewClassifier compiles the rule and pattern tables.
// Empty pattern lists fall back to the defaults.
func NewClassifier(rules []Rule, amountPatterns, counterpartyPatterns []string) (*Classifier, error) {
	if len(amountPatterns) == 0 {
		amountPatterns = DefaultAmountPatterns
	}
	if len(counterpartyPatterns) == 0 {
		counterpartyPatterns = DefaultCounterpartyPatterns
	}

	c := &Classifier{rules: make([]Rule, len(rules))}
	copy(c.rules, rules)

	for i, r := range c.rules {
		if strings.TrimSpace(r.Name) == "" {
			return nil, fmt.Errorf("rule %d has no name", i+1)
		}
		if r.Name == None {
			return nil, fmt.Errorf("rule %d uses reserved name %q", i+1, None)
		}
		lowered := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				lowered = append(lowered, kw)
			}
		}
		c.keywords = append(c.keywords, lowered)
	}

	var err error
	if c.amount, err = compileAll(amountPatterns); err != nil {
		return nil, fmt.Errorf("amount patterns: %w", err)
	}
	if c.counterparty, err = compileAll(counterpartyPatterns); err != nil {
		return nil, fmt.Errorf("counterparty patterns: %w", err)
	}
	return c, nil
}

// Default returns a classifier over the built-in tables.
func Default() *Classifier {
	c, err := NewClassifier(DefaultRules(), nil, nil)
	if err != nil {
		panic(err)
	}
	return c
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %q has no capture group", p)
		}
		out = append(out, re)
	}
	return out, nil
}

// Rules returns a copy of the rule table in priority order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify returns the first matching rule's category and the fields it extracts.
func (c *Classifier) Classify(text string) Classification {
	result := Classification{Trigger: None, Fields: map[string]string{}}
	if strings.TrimSpace(text) == "" {
		return result
	}

	lowered := strings.ToLower(text)
	for i := range c.rules {
		if !containsAny(lowered, c.keywords[i]) {
			continue
		}
		rule := c.rules[i]
		result.Trigger = rule.Name
		result.Rule = &rule
		for _, field := range rule.Extract {
			switch field {
			case FieldAmount:
				if amount, ok := c.ExtractAmount(text); ok {
					result.Fields[FieldAmount] = FormatAmount(amount)
				}
			case FieldCounterparty:
				if name, ok := c.ExtractCounterparty(text); ok {
					result.Fields[FieldCounterparty] = name
				}
			}
		}
		break
	}
	return result
}

// ExtractAmount returns the first monetary amount found in text.
func (c *Classifier) ExtractAmount(text string) (float64, bool) {
	for _, re := range c.amount {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return amount, true
	}
	return 0, false
}

// ExtractCounterparty returns the first capitalized name found after an anchor word.
func (c *Classifier) ExtractCounterparty(text string) (string, bool) {
	for _, re := range c.counterparty {
		if m := re.FindStringSubmatch(text); m != nil && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// FormatAmount renders an amount with two decimals and no separators.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
