package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osqazi/AI-Employee-FTE/internal/config"
	"github.com/osqazi/AI-Employee-FTE/internal/vault"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the vault and a default fte.yaml",
		Long:  "Creates the vault buckets, the plans and logs folders, and a commented fte.yaml. Existing files are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}
}

func runInit(cmd *cobra.Command, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	layout := vault.New(opts.cfg.Vault)

	if err := layout.Ensure(); err != nil {
		return err
	}
	path, created, err := config.WriteDefault(opts.cfg.Dir)
	if err != nil {
		return err
	}

	// Plan lock files are per-process state and never belong in version control.
	entry := lockPattern(opts.cfg.Dir, layout)
	if err := addToGitignore(filepath.Join(opts.cfg.Dir, ".gitignore"), entry); err != nil {
		return fmt.Errorf("failed to update .gitignore: %w", err)
	}

	fmt.Fprintln(out, "Initialized vault in", layout.Root)
	if created {
		fmt.Fprintln(out, "Wrote", path)
	} else {
		fmt.Fprintln(out, "Kept existing", path)
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Drop a file into %s, or run: fte ingest \"<message>\"\n", layout.Drop())
	fmt.Fprintln(out, "  2. Run: fte start")
	return nil
}

func lockPattern(dir string, layout vault.Layout) string {
	plans := layout.Plans()
	if rel, err := filepath.Rel(dir, plans); err == nil && !strings.HasPrefix(rel, "..") {
		plans = rel
	}
	return filepath.ToSlash(filepath.Join(plans, "*.lock"))
}

// addToGitignore appends entry unless the file already lists it.
func addToGitignore(path, entry string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		last = scanner.Text()
		if strings.TrimSpace(last) == entry {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	prefix := ""
	if info.Size() > 0 && last != "" {
		// The scanner strips the newline, so check the final byte directly.
		buf := make([]byte, 1)
		if _, err := f.ReadAt(buf, info.Size()-1); err != nil {
			return err
		}
		if buf[0] != '\n' {
			prefix = "\n"
		}
	}
	_, err = f.WriteString(prefix + entry + "\n")
	return err
}
