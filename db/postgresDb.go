package db

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// PostgresStore keeps one row per (bucket, key, member); the primary key
// makes every insert a set-insert and every document read duplicate-free.
// The collection names the backing table.
type PostgresStore struct {
	db    *sql.DB
	table string
}

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func NewPostgresStore(dsn, collection string) (store *PostgresStore, closeFunc func() error, err error) {
	if !validTableName.MatchString(collection) {
		return nil, nil, fmt.Errorf("invalid collection name %q", collection)
	}

	sqlDb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening postgres connection")
	}

	store = &PostgresStore{db: sqlDb, table: pq.QuoteIdentifier(collection)}
	closeFunc = sqlDb.Close

	if err := store.createTable(); err != nil {
		closeFunc()
		return nil, nil, errors.Wrap(err, "creating entries table")
	}

	return store, closeFunc, nil
}

func (s *PostgresStore) createTable() error {
	_, err := s.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			bucket TEXT NOT NULL,
			"key"  TEXT NOT NULL,
			member TEXT NOT NULL,
			PRIMARY KEY (bucket, "key", member)
		)`, s.table))
	return err
}

func (s *PostgresStore) FetchSet(bucket, key string) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT member FROM %s WHERE bucket = $1 AND "key" = $2`, s.table),
		bucket, key)
	if err != nil {
		return nil, errors.Wrapf(err, "postgres: fetching set %s/%s", bucket, key)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, errors.Wrap(err, "postgres: scanning member")
		}
		members = append(members, m)
	}

	return members, errors.Wrap(rows.Err(), "postgres: reading members")
}

func (s *PostgresStore) FetchSets(bucket string, keys []string) ([][]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT "key", member FROM %s WHERE bucket = $1 AND "key" = ANY($2)`, s.table),
		bucket, pq.Array(keys))
	if err != nil {
		return nil, errors.Wrapf(err, "postgres: fetching sets in %s", bucket)
	}
	defer rows.Close()

	byKey := make(map[string][]string, len(keys))
	for rows.Next() {
		var key, m string
		if err := rows.Scan(&key, &m); err != nil {
			return nil, errors.Wrap(err, "postgres: scanning member")
		}
		byKey[key] = append(byKey[key], m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: reading members")
	}

	sets := make([][]string, len(keys))
	for i, key := range keys {
		sets[i] = byKey[key]
	}
	return sets, nil
}

func (s *PostgresStore) AddMembers(bucket, key string, members []string) error {
	// A single statement, so the whole set-insert is as atomic as the
	// contract requires.
	_, err := s.db.Exec(fmt.Sprintf(
		`INSERT INTO %s (bucket, "key", member)
		 SELECT $1, $2, unnest($3::text[])
		 ON CONFLICT DO NOTHING`, s.table),
		bucket, key, pq.Array(members))

	return errors.Wrapf(err, "postgres: adding members to %s/%s", bucket, key)
}

func (s *PostgresStore) RemoveMembers(bucket, key string, members []string) error {
	_, err := s.db.Exec(fmt.Sprintf(
		`DELETE FROM %s WHERE bucket = $1 AND "key" = $2 AND member = ANY($3)`, s.table),
		bucket, key, pq.Array(members))

	return errors.Wrapf(err, "postgres: removing members from %s/%s", bucket, key)
}

func (s *PostgresStore) DeleteKeys(bucket string, keys []string) error {
	_, err := s.db.Exec(fmt.Sprintf(
		`DELETE FROM %s WHERE bucket = $1 AND "key" = ANY($2)`, s.table),
		bucket, pq.Array(keys))

	return errors.Wrapf(err, "postgres: deleting keys in %s", bucket)
}

func (s *PostgresStore) DeleteAll() error {
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s`, s.table))
	return errors.Wrap(err, "postgres: deleting all entries")
}
