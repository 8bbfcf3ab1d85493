package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osqazi/AI-Employee-FTE/internal/signal"
	"github.com/osqazi/AI-Employee-FTE/internal/task"
	"github.com/osqazi/AI-Employee-FTE/internal/trigger"
)

type ingestOptions struct {
	source   string
	sender   string
	subject  string
	priority string
	id       string
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	o := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest [text...]",
		Short: "Classify a message and file it as a task",
		Long: `Classifies the message text and creates a needs_action task for it.
Use "-" to read the text from stdin. Passing --id makes re-ingestion of the
same signal a no-op.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, o, args)
		},
	}
	cmd.Flags().StringVar(&o.source, "source", task.SourceCLI, "Signal source (whatsapp, gmail, file_drop, cli)")
	cmd.Flags().StringVar(&o.sender, "sender", "", "Sender of the message")
	cmd.Flags().StringVar(&o.subject, "subject", "", "Subject line")
	cmd.Flags().StringVar(&o.priority, "priority", "", "Priority (normal, high, critical)")
	cmd.Flags().StringVar(&o.id, "id", "", "Signal id used for deduplication")
	return cmd
}

func readText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.TrimSpace(strings.Join(args, " ")), nil
}

func runIngest(cmd *cobra.Command, opts *rootOptions, o *ingestOptions, args []string) error {
	text, err := readText(cmd, args)
	if err != nil {
		return err
	}
	if text == "" && o.subject == "" {
		return errors.New("nothing to ingest: pass the message text or --subject")
	}

	a, err := opts.open()
	if err != nil {
		return err
	}
	defer a.Close()

	in, err := a.ingester()
	if err != nil {
		return err
	}
	t, err := in.Ingest(cmd.Context(), signal.Signal{
		ID:       o.id,
		Source:   o.source,
		Sender:   o.sender,
		Subject:  o.subject,
		Text:     text,
		Priority: o.priority,
	})
	if errors.Is(err, task.ErrDuplicateSignal) {
		fmt.Fprintf(cmd.OutOrStdout(), "Signal %s was already ingested.\n", o.id)
		return nil
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Created", t.ID)
	fmt.Fprintf(out, "  Trigger:  %s\n", t.Type)
	fmt.Fprintf(out, "  Priority: %s\n", t.Priority)
	if t.BusinessAction != "" {
		fmt.Fprintf(out, "  Action:   %s\n", t.BusinessAction)
	}
	if t.RequiresApproval {
		fmt.Fprintln(out, "  Approval: required")
	} else {
		fmt.Fprintln(out, "  Approval: not required")
	}
	return nil
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text...>",
		Short: "Show how a message would be classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd, args)
			if err != nil {
				return err
			}
			classifier, err := opts.cfg.Classifier()
			if err != nil {
				return err
			}
			printClassification(cmd.OutOrStdout(), classifier.Classify(text))
			return nil
		},
	}
}

func printClassification(w io.Writer, c trigger.Classification) {
	fmt.Fprintf(w, "Trigger: %s\n", c.Trigger)
	if c.Rule != nil {
		if c.Rule.BusinessAction != "" {
			fmt.Fprintf(w, "Action:  %s\n", c.Rule.BusinessAction)
		}
		if c.Rule.Skill != "" {
			fmt.Fprintf(w, "Skill:   %s\n", c.Rule.Skill)
		}
		if c.Rule.Server != "" {
			fmt.Fprintf(w, "Server:  %s\n", c.Rule.Server)
		}
	}
	keys := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, c.Fields[k])
	}
}
