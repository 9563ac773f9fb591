package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asgardtech/pathsec/internal/cli/ui"
	"github.com/asgardtech/pathsec/internal/ops"
)

type batchOptions struct {
	op       string
	fail     bool
	progress bool
}

func newBatchCommand(opts *rootOptions) *cobra.Command {
	bopts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Apply one operation to every line of a file or stdin",
		Long: `Apply one operation to every line of a file, or of stdin when no file
or "-" is given. Blank lines are skipped and a trailing carriage return is
stripped from each line.`,
		Example: `  # Validate every path listed in uploads.txt
  pathsec batch --op validate-path uploads.txt

  # Sanitize filenames from another command, as JSON
  find . -type f | pathsec batch --op sanitize-filename -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, bopts, args)
		},
	}

	cmd.Flags().StringVar(&bopts.op, "op", string(ops.ValidatePath), "Operation: "+strings.Join(ops.Names(), ", "))
	cmd.Flags().BoolVar(&bopts.fail, "fail", false, "Exit with status 2 when any input is rejected or altered")
	cmd.Flags().BoolVar(&bopts.progress, "progress", false, "Show a progress bar on stderr")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *rootOptions, bopts *batchOptions, args []string) error {
	op, err := ops.Parse(bopts.op)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.UnknownOperationError(bopts.op, ops.Names(), opts.noColor))
		return err
	}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	engine, err := cfg.NewEngine()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	inputs, err := readLines(in, engine.Config().MaxInputSize)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("no inputs", opts.noColor))
		return nil
	}

	logger := opts.logger(cfg)
	defer logger.Sync()

	recorder, closeAudit, err := openRecorder(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	var bar *ui.ProgressBar
	if bopts.progress {
		bar = ui.NewProgressBar(cmd.ErrOrStderr(), len(inputs), 0, string(op), opts.noColor)
	}

	var step func()
	if bar != nil {
		step = func() { bar.Add(1) }
	}
	results := evaluate(cmd.Context(), engine, recorder, logger, op, inputs, step)
	if bar != nil {
		bar.Finish(fmt.Sprintf("%d inputs", len(inputs)))
	}

	if err := renderResults(cmd.OutOrStdout(), opts, op, inputs, results, true); err != nil {
		return err
	}
	return failIfFlagged(bopts.fail, results)
}

// readLines reads non-blank lines. Lines up to 64KiB past maxLine are still
// read so the engine can reject them as too long.
func readLines(r io.Reader, maxLine int) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine+64*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inputs: %w", err)
	}
	return lines, nil
}
