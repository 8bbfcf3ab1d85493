package trigger

// Field names produced by extraction.
const (
	FieldAmount       = "amount"
	FieldCounterparty = "counterparty"
)

// None is the trigger reported when no rule matches.
const None = "none"

// Rule maps a keyword set to a trigger category and the business action it implies.
// Rules are evaluated in table order; the first rule with any keyword hit wins.
type Rule struct {
	Name           string   `yaml:"name"`
	Keywords       []string `yaml:"keywords"`
	BusinessAction string   `yaml:"business_action,omitempty"`
	Skill          string   `yaml:"skill,omitempty"`
	Server         string   `yaml:"mcp_server,omitempty"`
	Extract        []string `yaml:"extract,omitempty"`
}

// DefaultRules returns the built-in rule table in priority order:
// invoice > achievement > receipt.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "invoice",
			Keywords: []string{
				"invoice", "payment", "client", "project", "completed", "delivered",
				"milestone", "contract", "deal", "sale", "revenue",
			},
			BusinessAction: "Create Odoo invoice",
			Skill:          "odoo_create_invoice",
			Server:         "odoo-mcp",
			Extract:        []string{FieldAmount, FieldCounterparty},
		},
		{
			Name: "achievement",
			Keywords: []string{
				"achievement", "award", "milestone", "success", "launched", "released",
				"completed", "anniversary", "celebration", "recognition",
			},
			BusinessAction: "Draft social media posts",
			Skill:          "social_generate_summary",
			Server:         "social-mcp",
		},
		{
			Name: "receipt",
			Keywords: []string{
				"receipt", "invoice", "bill", "expense", "purchase", "payment",
				"transaction", "order", "confirmation",
			},
			BusinessAction: "Log transaction in Odoo",
			Skill:          "odoo_log_transaction",
			Server:         "odoo-mcp",
			Extract:        []string{FieldAmount},
		},
	}
}

// DefaultAmountPatterns are tried in order; group 1 holds the number.
// Grouped thousands ($1,000.00) are tried before plain digit runs ($5000).
var DefaultAmountPatterns = []string{
	`\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`,
	`(?i)(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)\s*(?:dollars?|usd)\b`,
}

// DefaultCounterpartyPatterns are tried in order; group 1 holds the name.
var DefaultCounterpartyPatterns = []string{
	`\b[Cc]lient\s+([A-Z][a-zA-Z]+)`,
	`\b[Ff]or\s+([A-Z][a-zA-Z]+)`,
	`\b[Ff]rom\s+([A-Z][a-zA-Z]+)`,
}
