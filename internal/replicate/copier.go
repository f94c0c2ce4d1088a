package replicate

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Copier moves referral-hub rows from one Postgres instance to another.
// Conflicts resolve last-write-wins on updated_at where the table carries
// one; append-only tables just keep whichever row landed first.
type Copier struct {
	Source *sql.DB
	Target *sql.DB
}

// tableSpec describes how to pull and upsert one table. Columns are listed
// explicitly so a schema drift between instances fails loudly.
type tableSpec struct {
	name     string
	columns  []string
	keyCols  []string
	lwwCol   string // empty means insert-wins
}

var specs = []tableSpec{
	{
		name:    "hospitals",
		columns: []string{"id", "name", "registration_number", "type", "location", "contact", "email", "website", "created_at"},
		keyCols: []string{"id"},
	},
	{
		name:    "users",
		columns: []string{"id", "email", "password_hash", "display_name", "hospital_id", "created_at"},
		keyCols: []string{"id"},
	},
	{
		name:    "hospital_resources",
		columns: []string{"hospital_id", "doc", "updated_at"},
		keyCols: []string{"hospital_id"},
		lwwCol:  "updated_at",
	},
	{
		name:    "referrals",
		columns: []string{"id", "from_hospital_id", "to_hospital_id", "from_hospital_name", "to_hospital_name", "required_specialist", "resources_requested", "status", "created_at", "updated_at"},
		keyCols: []string{"id"},
		lwwCol:  "updated_at",
	},
	{
		name:    "referral_mirrors",
		columns: []string{"hospital_id", "referral_id", "direction", "doc", "status", "updated_at"},
		keyCols: []string{"hospital_id", "referral_id"},
		lwwCol:  "updated_at",
	},
	{
		name:    "notifications",
		columns: []string{"id", "hospital_id", "referral_id", "type", "title", "message", "read", "created_at"},
		keyCols: []string{"id"},
	},
}

func (s tableSpec) upsertSQL() string {
	cols := ""
	params := ""
	for i, c := range s.columns {
		if i > 0 {
			cols += ", "
			params += ", "
		}
		cols += c
		params += fmt.Sprintf("$%d", i+1)
	}

	keys := ""
	for i, k := range s.keyCols {
		if i > 0 {
			keys += ", "
		}
		keys += k
	}

	sets := ""
	for _, c := range s.columns {
		isKey := false
		for _, k := range s.keyCols {
			if c == k {
				isKey = true
			}
		}
		if isKey {
			continue
		}
		if sets != "" {
			sets += ", "
		}
		sets += fmt.Sprintf("%s = EXCLUDED.%s", c, c)
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)", s.name, cols, params, keys)
	if sets == "" {
		return q + " DO NOTHING"
	}
	q += " DO UPDATE SET " + sets
	if s.lwwCol != "" {
		q += fmt.Sprintf(" WHERE %s.%s <= EXCLUDED.%s", s.name, s.lwwCol, s.lwwCol)
	}
	return q
}

func (s tableSpec) selectSQL(where string) string {
	cols := ""
	for i, c := range s.columns {
		if i > 0 {
			cols += ", "
		}
		cols += c
	}
	q := fmt.Sprintf("SELECT %s FROM %s", cols, s.name)
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

// FullSync copies every table once, in dependency order.
func (c *Copier) FullSync(ctx context.Context) error {
	for _, spec := range specs {
		n, err := c.copyAll(ctx, spec)
		if err != nil {
			return fmt.Errorf("sync %s: %w", spec.name, err)
		}
		log.Printf("replicate: %s, %d rows", spec.name, n)
	}
	return nil
}

func (c *Copier) copyAll(ctx context.Context, spec tableSpec) (int, error) {
	rows, err := c.Source.QueryContext(ctx, spec.selectSQL(""))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	upsert := spec.upsertSQL()
	count := 0
	for rows.Next() {
		vals := make([]any, len(spec.columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return count, err
		}
		if _, err := c.Target.ExecContext(ctx, upsert, vals...); err != nil {
			return count, err
		}
		count++
	}
	return count, rows.Err()
}

// cursor keeps the last applied replication_log seq on the TARGET so a
// restarted follower resumes where it left off.
func (c *Copier) cursor(ctx context.Context) (int64, error) {
	_, err := c.Target.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS replication_cursor (
			source TEXT PRIMARY KEY,
			seq    BIGINT NOT NULL
		)`)
	if err != nil {
		return 0, err
	}
	var seq int64
	err = c.Target.QueryRowContext(ctx,
		`SELECT seq FROM replication_cursor WHERE source = 'default'`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (c *Copier) saveCursor(ctx context.Context, seq int64) error {
	_, err := c.Target.ExecContext(ctx, `
		INSERT INTO replication_cursor (source, seq) VALUES ('default', $1)
		ON CONFLICT (source) DO UPDATE SET seq = EXCLUDED.seq`, seq)
	return err
}

// Follow tails the source's replication_log until the context ends.
func (c *Copier) Follow(ctx context.Context, poll time.Duration, batch int) error {
	seq, err := c.cursor(ctx)
	if err != nil {
		return err
	}
	log.Printf("replicate: following from seq %d", seq)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		last, applied, err := c.applyBatch(ctx, seq, batch)
		if err != nil {
			log.Printf("replicate: batch failed at seq %d: %v", seq, err)
			continue
		}
		if applied > 0 {
			if err := c.saveCursor(ctx, last); err != nil {
				return err
			}
			log.Printf("replicate: applied %d changes through seq %d", applied, last)
			seq = last
		}
	}
}

func (c *Copier) applyBatch(ctx context.Context, after int64, batch int) (int64, int, error) {
	rows, err := c.Source.QueryContext(ctx, `
		SELECT seq, table_name, op, row_key
		FROM replication_log
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`, after, batch)
	if err != nil {
		return after, 0, err
	}
	defer rows.Close()

	type change struct {
		seq   int64
		table string
		op    string
		key   string
	}
	var changes []change
	for rows.Next() {
		var ch change
		if err := rows.Scan(&ch.seq, &ch.table, &ch.op, &ch.key); err != nil {
			return after, 0, err
		}
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return after, 0, err
	}

	last := after
	applied := 0
	for _, ch := range changes {
		if err := c.applyChange(ctx, ch.table, ch.op, ch.key); err != nil {
			return last, applied, err
		}
		last = ch.seq
		applied++
	}
	return last, applied, nil
}

func (c *Copier) applyChange(ctx context.Context, table, op, key string) error {
	spec, ok := specFor(table)
	if !ok {
		// Tables added later just flow past old followers.
		return nil
	}

	if op == "delete" {
		_, err := c.Target.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = $1", spec.name, spec.keyCols[0]), key)
		return err
	}

	if err := c.copyRow(ctx, spec, key); err != nil {
		return err
	}

	// A referral change invalidates its mirrors, which have no log trigger
	// of their own.
	if table == "referrals" {
		mirrors, _ := specFor("referral_mirrors")
		return c.copyWhere(ctx, mirrors, "referral_id = $1", key)
	}
	return nil
}

func (c *Copier) copyRow(ctx context.Context, spec tableSpec, key string) error {
	return c.copyWhere(ctx, spec, spec.keyCols[0]+" = $1", key)
}

func (c *Copier) copyWhere(ctx context.Context, spec tableSpec, where, key string) error {
	rows, err := c.Source.QueryContext(ctx, spec.selectSQL(where), key)
	if err != nil {
		return err
	}
	defer rows.Close()

	upsert := spec.upsertSQL()
	for rows.Next() {
		vals := make([]any, len(spec.columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if _, err := c.Target.ExecContext(ctx, upsert, vals...); err != nil {
			return err
		}
	}
	return rows.Err()
}

func specFor(table string) (tableSpec, bool) {
	for _, s := range specs {
		if s.name == table {
			return s, true
		}
	}
	return tableSpec{}, false
}
