package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/contrib/cache"
	"github.com/syssam/linkage/contrib/dataloader"
	"github.com/syssam/linkage/dialect/sql"
	"github.com/syssam/linkage/graph"
	"github.com/syssam/linkage/identity"
	"github.com/syssam/linkage/internal/cli/config"
)

type membersOptions struct {
	reload bool
	stats  bool
}

// NewMembersCommand creates the members command.
func NewMembersCommand() *cobra.Command {
	var opts membersOptions
	cmd := &cobra.Command{
		Use:   "members TYPE RELATIONSHIP ID [ID...]",
		Short: "Load a relationship of one or more records from the database",
		Long: `Members loads TYPE.RELATIONSHIP for every given record id through a
session backed by the configured database. Loads of the same relationship are
batched into one query.

Async relationships are read with a regular get, which may be served from the
membership cache. Sync relationships, and every relationship with --reload,
are reloaded.`,
		Example: `  linkage members post comments 1 2 3
  linkage members comment post 10 --stats -o yaml`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			logger := cfg.Logger(cmd.ErrOrStderr())
			return runMembers(cmd.Context(), cmd.OutOrStdout(), cfg, logger, args[0], args[1], args[2:], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.reload, "reload", false, "Reload instead of reading cached members")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Print load and query statistics")
	return cmd
}

// membership is the loaded members of one owner.
type membership struct {
	Owner   string   `yaml:"owner"`
	Type    string   `yaml:"type"`
	Members []string `yaml:"members"`
}

func runMembers(ctx context.Context, w io.Writer, cfg *config.Config, logger *slog.Logger,
	typeName, relationship string, ownerIDs []string, opts membersOptions,
) error {
	f, reg, err := readSchema(cfg, logger)
	if err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return err
	}
	drv, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = drv.Close() }()
	queries := sql.NewStatsDriver(drv,
		sql.WithSlowQueryThreshold(cfg.SlowLoad),
		sql.WithSlowQueryLog(logger),
	)

	ids := identity.New()
	sqlLoader := sql.NewLoader(queries, reg, ids, sql.WithLogger(logger))
	if err := f.Map(sqlLoader); err != nil {
		return err
	}
	var loader linkage.Loader = dataloader.NewBatchLoader(sqlLoader.LoadBatch,
		dataloader.WithWait(cfg.Batch.Wait),
		dataloader.WithMaxBatch(cfg.Batch.Max),
	)
	if cfg.Cache.Enabled {
		loader = cache.NewLoader(loader, cache.NewMemory(cache.WithMaxSize(cfg.Cache.MaxSize)), ids,
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(logger),
		)
	}
	loads := graph.NewStatsLoader(loader,
		graph.WithSlowThreshold(cfg.SlowLoad),
		graph.WithSlowLoadLog(logger),
	)
	sess := graph.NewSession(reg,
		graph.WithLoader(loads),
		graph.WithIdentityMap(ids),
		graph.WithLogger(logger),
	)

	// Start every load before waiting so the batch loader sees them together.
	pending := make([]*graph.Pending, len(ownerIDs))
	for i, id := range ownerIDs {
		owner, err := ids.Resolve(ctx, typeName, id)
		if err != nil {
			return err
		}
		rel, err := sess.Relationship(owner, relationship)
		if err != nil {
			return err
		}
		if opts.reload || !rel.Descriptor().Async {
			pending[i], err = rel.Reload(ctx)
		} else {
			pending[i], err = rel.Get(ctx)
		}
		if err != nil {
			return err
		}
	}
	result := make([]membership, len(ownerIDs))
	for i, p := range pending {
		records, err := p.Wait(ctx)
		if err != nil {
			return err
		}
		m := membership{Owner: ownerIDs[i], Members: make([]string, len(records))}
		for j, rec := range records {
			m.Type = rec.TypeName()
			m.Members[j] = rec.ID()
		}
		result[i] = m
	}

	if err := printMembers(w, cfg.Output, result); err != nil {
		return err
	}
	if opts.stats {
		_, _ = fmt.Fprintf(w, "loads: %s\n", loads.LoadStats().Stats())
		_, _ = fmt.Fprintf(w, "sql: %s\n", queries.Stats())
	}
	return nil
}

func printMembers(w io.Writer, output string, result []membership) error {
	if output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Owner", "Type", "Member"})
	for _, m := range result {
		if len(m.Members) == 0 {
			t.AppendRow(table.Row{m.Owner, "", "(none)"})
			continue
		}
		for _, id := range m.Members {
			t.AppendRow(table.Row{m.Owner, m.Type, id})
		}
	}
	t.Render()
	return nil
}

func openDriver(cfg *config.Config) (*sql.Driver, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no dsn configured (set dsn in %s, LINKAGE_DSN or --dsn)", config.DefaultFile)
	}
	return sql.Open(cfg.Driver, cfg.DSN)
}
