package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"eldercare-platform/pkg/utils"
)

// Dialect selects SQL flavor differences between Postgres (pgx) and SQLite.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore keeps every collection in one documents table. String equality
// filters are pushed down to the database; the rest run through the same
// matcher as MemoryStore.
type SQLStore struct {
	db       *sql.DB
	dialect  Dialect
	notifier Notifier
	clock    func() time.Time
	log      *slog.Logger
}

func NewSQLStore(db *sql.DB, dialect Dialect, notifier Notifier, log *slog.Logger) (*SQLStore, error) {
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("docstore: unsupported dialect %q", dialect)
	}
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if log == nil {
		log = slog.Default()
	}
	return &SQLStore{db: db, dialect: dialect, notifier: notifier, clock: time.Now, log: log}, nil
}

// EnsureSchema creates the documents table if missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	dataType := "TEXT"
	if s.dialect == DialectPostgres {
		dataType = "JSONB"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data ` + dataType + ` NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_collection_created ON documents (collection, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("docstore: ensure schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) ph(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLStore) Create(ctx context.Context, collection string, data Data) (string, error) {
	now := s.clock().UTC()
	body, err := normalize(data, now)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	q := fmt.Sprintf(`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (%s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	if _, err := s.db.ExecContext(ctx, q, collection, id, string(raw), now.UnixNano(), now.UnixNano()); err != nil {
		return "", fmt.Errorf("docstore: create %s: %w", collection, err)
	}
	s.changed(ctx, collection)
	return id, nil
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Document, error) {
	q := fmt.Sprintf(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = %s AND id = %s`, s.ph(1), s.ph(2))
	d, err := scanDoc(s.db.QueryRowContext(ctx, q, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields Data) error {
	now := s.clock().UTC()
	patch, err := normalize(fields, now)
	if err != nil {
		return err
	}

	sel := fmt.Sprintf(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = %s AND id = %s`, s.ph(1), s.ph(2))
	if s.dialect == DialectPostgres {
		sel += " FOR UPDATE"
	}
	upd := fmt.Sprintf(`UPDATE documents SET data = %s, updated_at = %s WHERE collection = %s AND id = %s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4))

	err = utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		d, err := scanDoc(tx.QueryRowContext(ctx, sel, collection, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		for k, v := range patch {
			d.Data[k] = v
		}
		raw, err := json.Marshal(d.Data)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, upd, string(raw), now.UnixNano(), collection, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	s.changed(ctx, collection)
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	q := fmt.Sprintf(`DELETE FROM documents WHERE collection = %s AND id = %s`, s.ph(1), s.ph(2))
	res, err := s.db.ExecContext(ctx, q, collection, id)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.changed(ctx, collection)
	return nil
}

func (s *SQLStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ` + s.ph(1))
	for _, f := range q.Filters {
		str, ok := f.Value.(string)
		if f.Op != OpEq || !ok {
			continue
		}
		if _, isTime := parseTime(str); isTime {
			continue
		}
		if s.dialect == DialectPostgres {
			args = append(args, f.Field, str)
			fmt.Fprintf(&b, ` AND data->>%s = %s`, s.ph(len(args)-1), s.ph(len(args)))
		} else {
			args = append(args, "$."+f.Field, str)
			b.WriteString(` AND json_extract(data, ?) = ?`)
		}
	}
	b.WriteString(` ORDER BY created_at, id`)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return apply(docs, q)
}

func (s *SQLStore) Watch(ctx context.Context, collection string, q Query) (<-chan []Document, error) {
	return watch(ctx, s.notifier, s.Query, collection, q, s.log)
}

func (s *SQLStore) changed(ctx context.Context, collection string) {
	if err := s.notifier.Notify(ctx, collection); err != nil {
		s.log.Warn("docstore notify failed", "collection", collection, "err", err)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoc(r rowScanner) (Document, error) {
	var (
		d                Document
		raw              string
		created, updated int64
	)
	if err := r.Scan(&d.ID, &raw, &created, &updated); err != nil {
		return Document{}, err
	}
	d.Data = Data{}
	if err := json.Unmarshal([]byte(raw), &d.Data); err != nil {
		return Document{}, fmt.Errorf("docstore: decode %s: %w", d.ID, err)
	}
	d.CreatedAt = time.Unix(0, created).UTC()
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return d, nil
}
