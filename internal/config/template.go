package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigYAML = `# fte configuration
# Every setting below can be omitted; the values shown are the defaults.

# Vault directory holding the task buckets, plans and logs.
# Overridden by FTE_VAULT.
vault: AI_Employee_Vault

store:
  # folder keeps one markdown file per task in the bucket directories.
  # sqlite keeps tasks in <vault>/fte.db. Overridden by FTE_STORE.
  backend: folder
  # Export sqlite records to the bucket directories as well.
  mirror: false

logging:
  # debug, info, warn or error. Overridden by FTE_LOG_LEVEL.
  level: info
  # console or json.
  format: console

engine:
  # claude or qwen. Overridden by AI_REASONING_ENGINE.
  name: claude
  # A custom command line; {prompt} is replaced by the prompt.
  # binary: my-agent
  # args: ["--prompt", "{prompt}"]

executor:
  max_iterations: 10

workflow:
  interval: 30s

approval:
  keywords:
    - approval
    - pending approval
    - requires approval
    - hitl
    - human approval
    - complex task
    - high priority
    - financial
    - invoice
    - payment
    - contract
    - agreement
  priorities: [high, critical]

triggers:
  # Evaluated in order; the first rule with a keyword hit wins.
  rules:
    - name: invoice
      keywords: [invoice, payment, client, project, completed, delivered, milestone, contract, deal, sale, revenue]
      business_action: Create Odoo invoice
      skill: odoo_create_invoice
      mcp_server: odoo-mcp
      extract: [amount, counterparty]
    - name: achievement
      keywords: [achievement, award, milestone, success, launched, released, completed, anniversary, celebration, recognition]
      business_action: Draft social media posts
      skill: social_generate_summary
      mcp_server: social-mcp
    - name: receipt
      keywords: [receipt, invoice, bill, expense, purchase, payment, transaction, order, confirmation]
      business_action: Log transaction in Odoo
      skill: odoo_log_transaction
      mcp_server: odoo-mcp
      extract: [amount]

sources:
  file_drop:
    enabled: true
    interval: 1m0s
    watch: true

supervisor:
  interval: 30s
  grace: 5s
  processes: []
  # Processes kept alive by "fte supervise" and "fte start":
  # processes:
  #   - name: cross_domain_trigger
  #     command: [python, watchers/cross_domain_trigger.py]
  #     restart_delay: 5s
  #     max_restarts: 3
  #   - name: gmail_watcher
  #     command: [python, watchers/gmail_watcher.py]
  #     restart_delay: 5s
  #   - name: whatsapp_watcher
  #     command: [python, watchers/whatsapp_watcher.py]
  #     restart_delay: 5s
  #   - name: email_mcp
  #     command: [node, mcp_servers/email-mcp/index.js]
  #     restart_delay: 10s
  #   - name: social_mcp
  #     command: [node, mcp_servers/social-mcp/index.js]
  #     restart_delay: 10s
  #   - name: odoo_mcp
  #     command: [node, mcp_servers/odoo-mcp/index.js]
  #     restart_delay: 10s
  #   - name: browser_mcp
  #     command: [node, mcp_servers/browser-mcp/index.js]
  #     restart_delay: 10s
  #   - name: docs_mcp
  #     command: [node, mcp_servers/docs-mcp/index.js]
  #     restart_delay: 10s
  #     backoff_factor: 2

# Publish every audit event to NATS subject <prefix>.<action>.
# Overridden by FTE_NATS_URL.
nats:
  # url: nats://127.0.0.1:4222
  prefix: fte.audit
`

// DefaultYAML returns the commented default configuration file.
func DefaultYAML() string {
	return defaultConfigYAML
}

// WriteDefault writes the default config to dir unless a config already
// exists there. It reports whether the file was created.
func WriteDefault(dir string) (string, bool, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return path, false, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return path, false, err
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return path, false, fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, true, nil
}
