package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/algosync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
)

// Store is a SQLite database that provides the record, job and scheduler
// stores through wrapper types sharing one connection pool.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (and migrates) the database in dataDir.
// If dataDir is empty, defaults to ~/.algosync/data/algosync.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".algosync", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return Open(filepath.Join(dataDir, "algosync.db"))
}

// Open opens the database file at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: path,
	}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RecordStore returns a RecordStore backed by this store.
func (s *Store) RecordStore() driven.RecordStore {
	return &recordStore{store: s}
}

// JobStore returns a JobStore backed by this store.
func (s *Store) JobStore() driven.JobStore {
	return &jobStore{store: s}
}

// SchedulerStore returns a SchedulerStore backed by this store.
func (s *Store) SchedulerStore() driven.SchedulerStore {
	return &schedulerStore{store: s}
}

// migrate runs every numbered .up.sql file newer than the recorded version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Record Store ====================

// recordStore implements driven.RecordStore. Class selection and ordering
// run in SQL; filters are evaluated on decoded records so that they behave
// exactly as in the other stores.
type recordStore struct {
	store *Store
}

var _ driven.RecordStore = (*recordStore)(nil)

const recordColumns = `id, class_name, title, link, show_in_search, versioned, published,
	fields, relations, created, last_edited,
	search_uuid, last_indexed_at, last_error, indexed_class_name`

// Get retrieves a record by id.
func (s *recordStore) Get(ctx context.Context, id int64) (*domain.Record, error) {
	row := s.store.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Query returns matching records by descending id.
func (s *recordStore) Query(ctx context.Context, q driven.RecordQuery) ([]domain.Record, error) {
	recs, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *rec)
	}
	return out, nil
}

// QueryIDs returns the ids of matching records by descending id.
// Without a filter only the id column is read. A filter is matched on
// decoded records, so a filtered call loads every row of the selected
// classes.
func (s *recordStore) QueryIDs(ctx context.Context, q driven.RecordQuery) ([]int64, error) {
	if q.Filter != nil {
		recs, err := s.query(ctx, q)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(recs))
		for _, rec := range recs {
			ids = append(ids, rec.ID)
		}
		return ids, nil
	}

	where, args := classClause(q.Classes)
	query := "SELECT id FROM records" + where + " ORDER BY id DESC" + pageClause(q)
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying record ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record ids: %w", err)
	}
	return ids, nil
}

func (s *recordStore) query(ctx context.Context, q driven.RecordQuery) ([]*domain.Record, error) {
	where, args := classClause(q.Classes)
	query := "SELECT " + recordColumns + " FROM records" + where + " ORDER BY id DESC"
	if q.Filter == nil {
		query += pageClause(q)
	}
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []*domain.Record
	skipped := 0
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if q.Filter != nil {
			if !q.Filter.Match(rec) {
				continue
			}
			if skipped < q.Offset {
				skipped++
				continue
			}
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

// classClause restricts a query to exact class names.
func classClause(classes []string) (string, []any) {
	if len(classes) == 0 {
		return "", nil
	}
	args := make([]any, len(classes))
	for i, c := range classes {
		args[i] = c
	}
	return " WHERE class_name IN (?" + strings.Repeat(", ?", len(classes)-1) + ")", args
}

func pageClause(q driven.RecordQuery) string {
	switch {
	case q.Limit > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	case q.Offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}
	return ""
}

// Save stores or updates a record. A zero ID is assigned by SQLite.
func (s *recordStore) Save(ctx context.Context, rec *domain.Record) error {
	if rec == nil {
		return domain.ErrInvalidInput
	}
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}
	relationsJSON, err := json.Marshal(rec.Relations)
	if err != nil {
		return fmt.Errorf("marshalling relations: %w", err)
	}

	var id any
	if rec.ID != 0 {
		id = rec.ID
	}
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			class_name = excluded.class_name,
			title = excluded.title,
			link = excluded.link,
			show_in_search = excluded.show_in_search,
			versioned = excluded.versioned,
			published = excluded.published,
			fields = excluded.fields,
			relations = excluded.relations,
			created = excluded.created,
			last_edited = excluded.last_edited,
			search_uuid = excluded.search_uuid,
			last_indexed_at = excluded.last_indexed_at,
			last_error = excluded.last_error,
			indexed_class_name = excluded.indexed_class_name
	`, id, rec.ClassName, rec.Title, rec.Link, nullBool(rec.ShowInSearch),
		boolToInt(rec.Versioned), boolToInt(rec.Published),
		string(fieldsJSON), string(relationsJSON),
		formatNullableTime(rec.Created), formatNullableTime(rec.LastEdited),
		nullString(rec.State.SearchUUID), formatTimePtr(rec.State.LastIndexedAt),
		nullString(rec.State.LastError), nullString(rec.State.IndexedClassName))
	if err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	if rec.ID == 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading record id: %w", err)
		}
		rec.ID = newID
	}
	return nil
}

// SaveIndexingState updates only the indexing columns of a record.
func (s *recordStore) SaveIndexingState(ctx context.Context, id int64, state domain.IndexingState) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE records SET
			search_uuid = ?,
			last_indexed_at = ?,
			last_error = ?,
			indexed_class_name = ?
		WHERE id = ?
	`, nullString(state.SearchUUID), formatTimePtr(state.LastIndexedAt),
		nullString(state.LastError), nullString(state.IndexedClassName), id)
	if err != nil {
		return fmt.Errorf("saving indexing state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving indexing state: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a record.
func (s *recordStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.store.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.Record, error) {
	var rec domain.Record
	var showInSearch sql.NullInt64
	var versioned, published int
	var fieldsJSON, relationsJSON string
	var created, lastEdited, searchUUID, lastIndexed, lastError, indexedClass sql.NullString

	if err := row.Scan(&rec.ID, &rec.ClassName, &rec.Title, &rec.Link, &showInSearch,
		&versioned, &published, &fieldsJSON, &relationsJSON, &created, &lastEdited,
		&searchUUID, &lastIndexed, &lastError, &indexedClass); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	if showInSearch.Valid {
		v := showInSearch.Int64 == 1
		rec.ShowInSearch = &v
	}
	rec.Versioned = versioned == 1
	rec.Published = published == 1

	fields, err := decodeFields(fieldsJSON)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	rec.Fields = fields
	if err := json.Unmarshal([]byte(relationsJSON), &rec.Relations); err != nil {
		return nil, fmt.Errorf("record %d: unmarshalling relations: %w", rec.ID, err)
	}

	rec.Created = parseNullableTime(created)
	rec.LastEdited = parseNullableTime(lastEdited)
	rec.State.SearchUUID = searchUUID.String
	if t := parseNullableTime(lastIndexed); !t.IsZero() {
		rec.State.LastIndexedAt = &t
	}
	rec.State.LastError = lastError.String
	rec.State.IndexedClassName = indexedClass.String
	return &rec, nil
}

// decodeFields restores field values to the Go types their kind implies,
// since JSON alone yields float64 numbers and string times.
func decodeFields(data string) (map[string]domain.FieldValue, error) {
	var raw map[string]struct {
		Kind  domain.FieldKind `json:"kind"`
		Value json.RawMessage  `json:"value"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshalling fields: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	fields := make(map[string]domain.FieldValue, len(raw))
	for name, f := range raw {
		v, err := decodeFieldValue(f.Kind, f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = domain.FieldValue{Kind: f.Kind, Value: v}
	}
	return fields, nil
}

func decodeFieldValue(kind domain.FieldKind, data json.RawMessage) (any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var err error
	switch kind {
	case domain.FieldInt, domain.FieldForeignKey:
		var v int64
		err = json.Unmarshal(data, &v)
		return v, err
	case domain.FieldFloat:
		var v float64
		err = json.Unmarshal(data, &v)
		return v, err
	case domain.FieldBool:
		var v bool
		err = json.Unmarshal(data, &v)
		return v, err
	case domain.FieldDate, domain.FieldDatetime:
		var v time.Time
		err = json.Unmarshal(data, &v)
		return v, err
	case domain.FieldStringList:
		var v []string
		err = json.Unmarshal(data, &v)
		return v, err
	case domain.FieldString, domain.FieldText, domain.FieldHTML, domain.FieldEnum:
		var v string
		err = json.Unmarshal(data, &v)
		return v, err
	}
	var v any
	err = json.Unmarshal(data, &v)
	return v, err
}

// ==================== Helper Functions ====================

// formatNullableTime formats a time as RFC3339, or nil for the zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatNullableTime(*t)
}

// parseNullableTime parses a nullable RFC3339 string.
// Returns the zero time if the string is empty or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
