package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asgardtech/pathsec/internal/audit"
	"github.com/asgardtech/pathsec/internal/cli/ui"
	"github.com/asgardtech/pathsec/pkg/pathsec"
)

func newAuditCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail of rejected inputs",
		Long: `Inspect the audit trail of rejected inputs recorded by the checks and the
HTTP API. Requires audit.driver (sqlite3 or pgx) and audit.dsn.`,
		Example: `  # Most recent rejections
  pathsec audit list

  # Encoded traversal attempts only, as JSON
  pathsec audit list --reason ENCODED_DOT_DOT -o json

  # Drop entries older than a week
  pathsec audit prune --older-than 168h`,
	}

	cmd.AddCommand(newAuditListCommand(opts))
	cmd.AddCommand(newAuditPruneCommand(opts))
	return cmd
}

func newAuditListCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		reason string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent rejections, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := auditStoreFor(cmd, opts)
			if err != nil {
				return err
			}
			defer closeStore()

			entries, err := store.List(cmd.Context(), audit.Filter{
				Reason: pathsec.Reason(strings.ToUpper(reason)),
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.output == OutputJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if entries == nil {
					entries = []audit.Entry{}
				}
				return enc.Encode(entries)
			}

			if len(entries) == 0 {
				fmt.Fprint(w, ui.FormatMessage(ui.MessageOptions{Level: ui.LevelInfo, Problem: "no audit entries", NoColor: opts.noColor}))
				return nil
			}
			t := ui.NewTable(w, []string{"TIME", "OPERATION", "REASON", "REQUEST", "INPUT"}, opts.noColor)
			for _, e := range entries {
				t.AddRow(e.CreatedAt.Format(time.RFC3339), e.Operation, string(e.Reason), e.RequestID, fmt.Sprintf("%q", e.Input))
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	cmd.Flags().StringVar(&reason, "reason", "", "Only entries with this reason code, e.g. DOT_DOT")
	return cmd
}

func newAuditPruneCommand(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := auditStoreFor(cmd, opts)
			if err != nil {
				return err
			}
			defer closeStore()

			if olderThan <= 0 {
				olderThan = opts.cfg.Audit.Retention
			}
			if olderThan <= 0 {
				return errors.New("--older-than must be greater than 0")
			}

			n, err := store.Prune(cmd.Context(), time.Now().UTC().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.FormatSuccess(fmt.Sprintf("pruned %d entries", n), opts.noColor))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age cutoff (default audit.retention)")
	return cmd
}

func auditStoreFor(cmd *cobra.Command, opts *rootOptions) (*audit.Store, func(), error) {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Audit.Driver == "none" {
		return nil, nil, errors.New("audit trail is disabled (set audit.driver and audit.dsn)")
	}
	return openAuditStore(cfg, opts.logger(cfg), false)
}
