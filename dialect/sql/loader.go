package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/syssam/linkage"
	"github.com/syssam/linkage/contrib/dataloader"
	"github.com/syssam/linkage/dialect"
	"github.com/syssam/linkage/schema"
	"github.com/syssam/linkage/schema/edge"
)

// Mapping describes where the members of a relationship are stored.
//
// Each row of Table links the owner (OwnerColumn) to one related record
// (TargetColumn). For a has-many relationship stored as a foreign key on the
// related table, Table is the related table, OwnerColumn the foreign key and
// TargetColumn the primary key. Join tables work the same way.
type Mapping struct {
	Table        string
	OwnerColumn  string
	TargetColumn string
	// OrderBy is an optional column that defines the member order.
	OrderBy string
}

// DefaultMapping returns the conventional mapping of a relationship declared
// on ownerType: a foreign key named after the owner on the related table for
// has-many, and a foreign key named after the relationship on the owner table
// for belongs-to.
//
//	post.comments  -> comments(post_id, id)
//	comment.post   -> comments(id, post_id)
func DefaultMapping(ownerType string, d *edge.Descriptor) Mapping {
	if d.Unique() {
		return Mapping{
			Table:        inflect.Tableize(ownerType),
			OwnerColumn:  "id",
			TargetColumn: inflect.ForeignKey(d.Name),
		}
	}
	return Mapping{
		Table:        inflect.Tableize(d.Type),
		OwnerColumn:  inflect.ForeignKey(ownerType),
		TargetColumn: "id",
		OrderBy:      "id",
	}
}

func (m Mapping) validate() error {
	for _, ident := range []string{m.Table, m.OwnerColumn, m.TargetColumn} {
		if !isValidIdentifier(ident) {
			return fmt.Errorf("dialect/sql: invalid identifier %q", ident)
		}
	}
	if m.OrderBy != "" && !isValidIdentifier(m.OrderBy) {
		return fmt.Errorf("dialect/sql: invalid identifier %q", m.OrderBy)
	}
	return nil
}

type mappingKey struct {
	typ, name string
}

// Loader loads relationship members from SQL tables and resolves them
// through an identity map. It implements linkage.Loader.
type Loader struct {
	drv      dialect.Driver
	schema   *schema.Registry
	identity linkage.IdentityMap
	logger   *slog.Logger

	mu       sync.RWMutex
	mappings map[mappingKey]Mapping
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader logger. Default is slog.Default().
func WithLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// NewLoader returns a loader reading through drv.
//
// Example:
//
//	drv, _ := sql.Open("sqlite", "file:blog.db")
//	loader := sql.NewLoader(drv, reg, identity.New())
//	if err := loader.Map("post", "comments", sql.Mapping{
//	    Table:        "comments",
//	    OwnerColumn:  "post_id",
//	    TargetColumn: "id",
//	    OrderBy:      "created_at",
//	}); err != nil {
//	    return err
//	}
//	sess := graph.NewSession(reg, graph.WithLoader(loader))
func NewLoader(drv dialect.Driver, reg *schema.Registry, ids linkage.IdentityMap, opts ...LoaderOption) *Loader {
	l := &Loader{
		drv:      drv,
		schema:   reg,
		identity: ids,
		logger:   slog.Default(),
		mappings: make(map[mappingKey]Mapping),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Map sets the storage mapping of typeName's relationship. Relationships
// that are never mapped use DefaultMapping.
func (l *Loader) Map(typeName, relationship string, m Mapping) error {
	if _, err := l.schema.Relationship(typeName, relationship); err != nil {
		return err
	}
	if err := m.validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mappings[mappingKey{edge.NormalizeType(typeName), relationship}] = m
	return nil
}

// Mapping returns the mapping used for typeName's relationship.
func (l *Loader) Mapping(typeName, relationship string) (Mapping, *edge.Descriptor, error) {
	typeName = edge.NormalizeType(typeName)
	d, err := l.schema.Relationship(typeName, relationship)
	if err != nil {
		return Mapping{}, nil, err
	}
	l.mu.RLock()
	m, ok := l.mappings[mappingKey{typeName, relationship}]
	l.mu.RUnlock()
	if !ok {
		m = DefaultMapping(typeName, d)
		if err := m.validate(); err != nil {
			return Mapping{}, nil, err
		}
	}
	return m, d, nil
}

// Schema returns the registry the loader was created with.
func (l *Loader) Schema() *schema.Registry { return l.schema }

// CheckStorage checks that the table and columns mapped for typeName's
// relationship exist by running a member query that matches no rows. The
// query runs in its own transaction, which is always rolled back, so a failed
// check leaves nothing open on the connection.
func (l *Loader) CheckStorage(ctx context.Context, typeName, relationship string) (err error) {
	m, _, err := l.Mapping(typeName, relationship)
	if err != nil {
		return err
	}
	query := l.selectQuery(m, 0)
	l.logger.DebugContext(ctx, "checking relationship storage", "query", query)
	tx, err := l.drv.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := tx.Rollback(); err == nil && rerr != nil {
			err = fmt.Errorf("dialect/sql: rollback storage check: %w", rerr)
		}
	}()
	rows := &Rows{}
	if err := tx.Query(ctx, query, []any{}, rows); err != nil {
		return err
	}
	return rows.Close()
}

// Load implements linkage.Loader.
func (l *Loader) Load(ctx context.Context, owner linkage.Record, relationship string) ([]linkage.Record, error) {
	m, d, err := l.Mapping(owner.TypeName(), relationship)
	if err != nil {
		return nil, err
	}
	if owner.ID() == "" {
		return nil, nil
	}
	query := l.selectQuery(m, 1)
	l.logger.DebugContext(ctx, "loading relationship", "query", query, "owner", owner.ID())
	rows := &Rows{}
	if err := l.drv.Query(ctx, query, []any{owner.ID()}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var ownerID, id NullString
		if err := rows.Scan(&ownerID, &id); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan %s: %w", m.Table, err)
		}
		if id.Valid {
			ids = append(ids, id.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return l.resolve(ctx, d.Type, ids)
}

type link struct {
	owner, target string
}

// LoadBatch loads the relationship for several owners of the same type with
// a single query. The result holds one member slice per owner, in order.
func (l *Loader) LoadBatch(ctx context.Context, owners []linkage.Record, relationship string) ([][]linkage.Record, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	typeName := edge.NormalizeType(owners[0].TypeName())
	m, d, err := l.Mapping(typeName, relationship)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(owners))
	args := make([]any, 0, len(owners))
	seen := make(map[string]struct{}, len(owners))
	for i, o := range owners {
		if t := edge.NormalizeType(o.TypeName()); t != typeName {
			return nil, &linkage.RecordTypeError{Relationship: relationship, Want: typeName, Got: t}
		}
		keys[i] = o.ID()
		if _, ok := seen[keys[i]]; ok || keys[i] == "" {
			continue
		}
		seen[keys[i]] = struct{}{}
		args = append(args, keys[i])
	}
	result := make([][]linkage.Record, len(owners))
	if len(args) == 0 {
		return result, nil
	}

	query := l.selectQuery(m, len(args))
	l.logger.DebugContext(ctx, "loading relationship batch", "query", query, "owners", len(args))
	rows := &Rows{}
	if err := l.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []link
	for rows.Next() {
		var ownerID, id NullString
		if err := rows.Scan(&ownerID, &id); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan %s: %w", m.Table, err)
		}
		if ownerID.Valid && id.Valid {
			links = append(links, link{ownerID.String, id.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	grouped := dataloader.GroupByKey(links, func(lk link) string { return lk.owner })
	for i, group := range dataloader.OrderGroupsByKeys(keys, grouped) {
		ids := make([]string, len(group))
		for j, lk := range group {
			ids[j] = lk.target
		}
		if result[i], err = l.resolve(ctx, d.Type, ids); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (l *Loader) resolve(ctx context.Context, typeName string, ids []string) ([]linkage.Record, error) {
	records := make([]linkage.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := l.identity.Resolve(ctx, typeName, id)
		if err != nil {
			return nil, fmt.Errorf("dialect/sql: resolve %s %s: %w", typeName, id, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// selectQuery builds the member query for n owners. The owner column is
// selected too so one scan loop serves single and batch loads. Zero owners
// builds the storage check query.
func (l *Loader) selectQuery(m Mapping, n int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(l.quote(m.OwnerColumn))
	b.WriteString(", ")
	b.WriteString(l.quote(m.TargetColumn))
	b.WriteString(" FROM ")
	b.WriteString(l.quote(m.Table))
	b.WriteString(" WHERE ")
	switch n {
	case 0:
		b.WriteString("1 = 0")
	case 1:
		b.WriteString(l.quote(m.OwnerColumn))
		b.WriteString(" = ")
		b.WriteString(l.placeholder(1))
	default:
		b.WriteString(l.quote(m.OwnerColumn))
		b.WriteString(" IN (")
		for i := 1; i <= n; i++ {
			if i > 1 {
				b.WriteString(", ")
			}
			b.WriteString(l.placeholder(i))
		}
		b.WriteString(")")
	}
	if m.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(l.quote(m.OrderBy))
	}
	return b.String()
}

func (l *Loader) quote(ident string) string {
	q := `"`
	if l.drv.Dialect() == dialect.MySQL {
		q = "`"
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = q + p + q
	}
	return strings.Join(parts, ".")
}

func (l *Loader) placeholder(i int) string {
	if l.drv.Dialect() == dialect.Postgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

var _ linkage.Loader = (*Loader)(nil)
