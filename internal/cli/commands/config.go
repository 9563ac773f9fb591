package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/asgardtech/pathsec/internal/cli/config"
	"github.com/asgardtech/pathsec/internal/cli/ui"
)

const redacted = "********"

// setting is one effective config value
type setting struct {
	section string
	key     string
	value   string
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration after defaults, the config file, .env and
PATHSEC_* environment variables are applied. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return renderConfig(cmd.OutOrStdout(), cfg, opts.output == OutputJSON, opts.noColor)
		},
	}
}

func renderConfig(w io.Writer, cfg *config.Config, asJSON, noColor bool) error {
	settings := effectiveSettings(cfg)

	if asJSON {
		out := map[string]map[string]string{}
		for _, s := range settings {
			if out[s.section] == nil {
				out[s.section] = map[string]string{}
			}
			out[s.section][s.key] = s.value
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	sections := lo.Uniq(lo.Map(settings, func(s setting, _ int) string { return s.section }))
	for i, section := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		ui.Header(w, section, noColor)
		t := ui.NewKeyValueTable(w, noColor)
		for _, s := range lo.Filter(settings, func(s setting, _ int) bool { return s.section == section }) {
			t.AddRow(s.key, s.value)
		}
		t.Render()
	}
	return nil
}

func effectiveSettings(cfg *config.Config) []setting {
	secret := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}

	return []setting{
		{"engine", "platform", cfg.Engine.Platform},
		{"engine", "max_input_size", cfg.Engine.MaxInputSize},
		{"engine", "max_decode_rounds", strconv.Itoa(cfg.Engine.MaxDecodeRounds)},
		{"engine", "allow_absolute", strconv.FormatBool(cfg.Engine.AllowAbsolute)},
		{"engine", "strict_separators", strconv.FormatBool(cfg.Engine.StrictSeparators)},
		{"engine", "placeholder", cfg.Engine.Placeholder},
		{"engine", "project_placeholder", cfg.Engine.ProjectPlaceholder},
		{"engine", "deny_globs", strings.Join(cfg.Engine.DenyGlobs, ", ")},
		{"engine", "deny_system_paths", strconv.FormatBool(cfg.Engine.DenySystemPaths)},

		{"server", "address", cfg.Address()},
		{"server", "read_timeout", cfg.Server.ReadTimeout.String()},
		{"server", "write_timeout", cfg.Server.WriteTimeout.String()},
		{"server", "idle_timeout", cfg.Server.IdleTimeout.String()},
		{"server", "shutdown_timeout", cfg.Server.ShutdownTimeout.String()},
		{"server", "max_body_size", cfg.Server.MaxBodySize},
		{"server", "max_batch_size", strconv.Itoa(cfg.Server.MaxBatchSize)},
		{"server", "tls_cert_file", cfg.Server.TLSCertFile},
		{"server", "pprof_addr", cfg.Server.PprofAddr},

		{"log", "level", cfg.Log.Level},
		{"log", "format", cfg.Log.Format},

		{"cache", "driver", cfg.Cache.Driver},
		{"cache", "ttl", cfg.Cache.TTL.String()},
		{"cache", "prefix", cfg.Cache.Prefix},

		{"ratelimit", "driver", cfg.RateLimit.Driver},
		{"ratelimit", "limit", strconv.Itoa(cfg.RateLimit.Limit)},
		{"ratelimit", "window", cfg.RateLimit.Window.String()},

		{"redis", "addr", cfg.Redis.Addr},
		{"redis", "password", secret(cfg.Redis.Password)},
		{"redis", "db", strconv.Itoa(cfg.Redis.DB)},

		{"audit", "driver", cfg.Audit.Driver},
		{"audit", "dsn", secret(cfg.Audit.DSN)},
		{"audit", "table", cfg.Audit.Table},
		{"audit", "retention", cfg.Audit.Retention.String()},

		{"auth", "jwt_secret", secret(cfg.Auth.JWTSecret)},
		{"auth", "token_ttl", cfg.Auth.TokenTTL.String()},
	}
}
