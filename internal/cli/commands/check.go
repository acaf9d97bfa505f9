// Package commands implements the linkage CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/syssam/linkage/dialect/sql"
	sqlschema "github.com/syssam/linkage/dialect/sql/schema"
	"github.com/syssam/linkage/identity"
	"github.com/syssam/linkage/internal/cli/config"
	"github.com/syssam/linkage/schema"
	"github.com/syssam/linkage/schema/load"
)

// errInvalidSchema is returned by check when some relationship does not
// resolve.
var errInvalidSchema = errors.New("schema has invalid relationships")

type checkOptions struct {
	watch bool
	db    bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the schema and show every relationship with its inverse",
		Long: `Check reads the schema file, resolves the inverse of every relationship
and prints the result. It fails when a relationship names an unknown type or
its inverse is unknown or ambiguous.

With --db the storage mapping of every relationship is verified against the
configured database. With --watch the check runs again whenever the schema
file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := cfg.Logger(cmd.ErrOrStderr())
			if !opts.watch {
				return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, logger, opts)
			}
			return watchFile(cmd.Context(), cfg.Schema, logger, func() {
				if err := runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, logger, opts); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Check again when the schema file changes")
	cmd.Flags().BoolVar(&opts.db, "db", false, "Verify storage mappings against the database")
	return cmd
}

// readSchema reads the schema file and declares its types without
// validating them.
func readSchema(cfg *config.Config, logger *slog.Logger) (*load.File, *schema.Registry, error) {
	f, err := load.ReadFile(cfg.Schema)
	if err != nil {
		return nil, nil, err
	}
	reg := schema.New(schema.WithLogger(logger))
	if err := f.Declare(reg); err != nil {
		return nil, nil, err
	}
	return f, reg, nil
}

func runCheck(ctx context.Context, w io.Writer, cfg *config.Config, logger *slog.Logger, opts checkOptions) error {
	f, reg, err := readSchema(cfg, logger)
	if err != nil {
		return err
	}
	if cfg.Output == "yaml" {
		if err := reg.Validate(); err != nil {
			return err
		}
		data, err := load.FromRegistry(reg).Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Type", "Relationship", "Kind", "Related", "Async", "Inverse"})
	var invalid int
	for _, typ := range reg.Types() {
		for _, d := range typ.Relationships {
			async := strconv.FormatBool(d.Async)
			if !d.AsyncSet {
				async += " (default)"
			}
			inverse := "(none)"
			switch inv, err := reg.Inverse(typ.Name, d.Name); {
			case err != nil:
				inverse = "error: " + err.Error()
				invalid++
			case inv != nil:
				inverse = d.Type + "." + inv.Name
			}
			t.AppendRow(table.Row{typ.Name, d.Name, d.Kind, d.Type, async, inverse})
		}
	}
	t.Render()
	if invalid > 0 {
		return fmt.Errorf("%w: %d", errInvalidSchema, invalid)
	}
	_, _ = fmt.Fprintf(w, "%d types OK\n", len(reg.Types()))
	if opts.db {
		return verifyStorage(ctx, w, cfg, logger, f, reg)
	}
	return nil
}

func verifyStorage(ctx context.Context, w io.Writer, cfg *config.Config, logger *slog.Logger, f *load.File, reg *schema.Registry) error {
	drv, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = drv.Close() }()
	queries := sql.NewStatsDriver(drv,
		sql.WithSlowQueryThreshold(cfg.SlowLoad),
		sql.WithSlowQueryLog(logger),
	)
	l := sql.NewLoader(queries, reg, identity.New(), sql.WithLogger(logger))
	if err := f.Map(l); err != nil {
		return err
	}
	result := sqlschema.Verify(ctx, l)
	logger.DebugContext(ctx, "storage verified", "sql", queries.Stats().String())
	_, _ = fmt.Fprintln(w, result.String())
	if result.HasErrors() {
		return fmt.Errorf("%w: %d storage errors", errInvalidSchema, len(result.Errors))
	}
	return nil
}
