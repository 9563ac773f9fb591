package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asgardtech/pathsec/internal/api"
	"github.com/asgardtech/pathsec/internal/audit"
	"github.com/asgardtech/pathsec/internal/cli/config"
	"github.com/asgardtech/pathsec/internal/cli/ui"
	"github.com/asgardtech/pathsec/internal/ops"
	"github.com/asgardtech/pathsec/pkg/pathsec"
)

var operationHelp = map[ops.Operation]struct{ short, example string }{
	ops.ValidatePath: {
		"Accept or reject paths",
		`  pathsec validate-path docs/readme.md ../../etc/passwd`,
	},
	ops.DetectTraversal: {
		"Report whether inputs attempt directory traversal",
		`  pathsec detect-traversal '%2e%2e%2fetc%2fpasswd'`,
	},
	ops.SanitizePath: {
		"Rewrite paths into a safe form",
		`  pathsec sanitize-path '../../etc/passwd'`,
	},
	ops.ValidateFilename: {
		"Accept or reject single file names",
		`  pathsec validate-filename report-2024.xlsx 'notes.txt:hidden'`,
	},
	ops.SanitizeFilename: {
		"Rewrite filenames into a single safe component",
		`  pathsec sanitize-filename 'report?.txt' CON`,
	},
	ops.ValidateProjectName: {
		"Accept or reject project names",
		`  pathsec validate-project-name my-project`,
	},
	ops.SanitizeProjectName: {
		"Rewrite project names into a valid one",
		`  pathsec sanitize-project-name 'My Project!'`,
	},
}

func newOperationCommand(opts *rootOptions, op ops.Operation) *cobra.Command {
	var fail bool

	cmd := &cobra.Command{
		Use:     string(op) + " <input>...",
		Short:   operationHelp[op].short,
		Example: operationHelp[op].example + "\n\n  # Exit with status 2 when anything is flagged\n  pathsec " + string(op) + " --fail -o json <input>",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := cfg.NewEngine()
			if err != nil {
				return err
			}

			logger := opts.logger(cfg)
			defer logger.Sync()

			recorder, closeAudit, err := openRecorder(cfg, logger)
			if err != nil {
				return err
			}
			defer closeAudit()

			results := evaluate(cmd.Context(), engine, recorder, logger, op, args, nil)
			if err := renderResults(cmd.OutOrStdout(), opts, op, args, results, false); err != nil {
				return err
			}
			return failIfFlagged(fail, results)
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Exit with status 2 when any input is rejected or altered")
	return cmd
}

// evaluate applies op to every input and records rejections under a shared
// request ID, calling step after each input when non-nil. Audit failures are
// logged and never change a result.
func evaluate(ctx context.Context, engine *pathsec.Engine, recorder audit.Recorder, logger *zap.Logger, op ops.Operation, inputs []string, step func()) []interface{} {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := "cli-" + uuid.NewString()

	results := make([]interface{}, len(inputs))
	for i, input := range inputs {
		result, err := ops.Apply(engine, op, input)
		if err != nil {
			// op came from ops.Parse or ops.All
			panic(err)
		}
		results[i] = result

		if reason, rejected := ops.Rejection(result); rejected {
			err := recorder.Record(ctx, audit.Entry{
				Operation: string(op),
				Input:     input,
				Reason:    reason,
				RequestID: requestID,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				logger.Warn("audit record failed", zap.String("operation", string(op)), zap.Error(err))
			}
		}
		if step != nil {
			step()
		}
	}
	return results
}

// renderResults prints results as a table or JSON. Outside a batch a single
// JSON result is printed bare, matching the single-input HTTP endpoints.
func renderResults(w io.Writer, opts *rootOptions, op ops.Operation, inputs []string, results []interface{}, batch bool) error {
	if opts.output == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(results) == 1 && !batch {
			return enc.Encode(results[0])
		}
		return enc.Encode(&api.BatchResponse{Operation: string(op), Results: results})
	}

	if len(results) == 1 && !batch {
		ui.RenderResult(w, string(op), inputs[0], results[0], opts.noColor)
		return nil
	}
	ui.RenderResults(w, inputs, results, opts.noColor)
	ok, flagged := ui.Counts(results)
	fmt.Fprintf(w, "\n%d ok, %d flagged\n", ok, flagged)
	return nil
}

func failIfFlagged(fail bool, results []interface{}) error {
	if !fail {
		return nil
	}
	if _, flagged := ui.Counts(results); flagged > 0 {
		return ErrRejected
	}
	return nil
}

// openRecorder opens the configured audit store without background cleanup.
// The returned close function is always safe to call.
func openRecorder(cfg *config.Config, logger *zap.Logger) (audit.Recorder, func(), error) {
	if cfg.Audit.Driver == "none" {
		return audit.Nop{}, func() {}, nil
	}
	store, closeStore, err := openAuditStore(cfg, logger, false)
	if err != nil {
		return nil, nil, err
	}
	return store, closeStore, nil
}

// openAuditStore opens the audit database and store. cleanup enables the
// retention loop.
func openAuditStore(cfg *config.Config, logger *zap.Logger, cleanup bool) (*audit.Store, func(), error) {
	db, err := audit.Open(cfg.Audit.Driver, cfg.Audit.DSN)
	if err != nil {
		return nil, nil, err
	}

	ac := audit.DefaultConfig(db)
	ac.TableName = cfg.Audit.Table
	ac.Retention = cfg.Audit.Retention
	ac.Logger = logger
	if !cleanup {
		ac.CleanupInterval = 0
	}

	store, err := audit.NewStore(ac)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() {
		store.Close()
		db.Close()
	}, nil
}
