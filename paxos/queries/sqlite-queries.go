package queries

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqlDriver = "sqlite3"

// SQLiteStore implements the Store interface on a sqlite database file holding a single 'learnt' table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating it if needed) the database at @path and creates the tables.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("db_path is required for the sqlite store")
	}
	db, err := sql.Open(sqlDriver, path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	// a single connection serializes writers, sqlite would answer SQLITE_BUSY otherwise
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initDatabase(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// initDatabase creates tables and columns.
func (s *SQLiteStore) initDatabase() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS learnt (
		turn_id INTEGER PRIMARY KEY,
		v       BLOB
	)`)
	return errors.Wrap(err, "creating table learnt")
}

// GetLearntValue implements the Store interface.
func (s *SQLiteStore) GetLearntValue(turnID int) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRow("SELECT v FROM learnt WHERE turn_id = ?", turnID).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading turn id %d", turnID)
	}
	return v, true, nil
}

// SetLearntValue implements the Store interface.
func (s *SQLiteStore) SetLearntValue(turnID int, v []byte) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO learnt (turn_id, v) VALUES (?, ?)", turnID, v)
	return errors.Wrapf(err, "storing turn id %d", turnID)
}

// GetAllLearntValues implements the Store interface.
func (s *SQLiteStore) GetAllLearntValues() ([]LearntWithTid, error) {
	rows, err := s.db.Query("SELECT turn_id, v FROM learnt ORDER BY turn_id")
	if err != nil {
		return nil, errors.Wrap(err, "listing learnt values")
	}
	defer rows.Close()

	var all []LearntWithTid
	for rows.Next() {
		var e LearntWithTid
		if err := rows.Scan(&e.TurnID, &e.Learnt); err != nil {
			return nil, errors.Wrap(err, "scanning learnt row")
		}
		all = append(all, e)
	}
	return all, errors.Wrap(rows.Err(), "iterating learnt rows")
}

// GetLastTurnID implements the Store interface.
func (s *SQLiteStore) GetLastTurnID() (int, error) {
	var lastID sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(turn_id) FROM learnt").Scan(&lastID)
	if err != nil {
		return 0, errors.Wrap(err, "reading last turn id")
	}
	return int(lastID.Int64), nil
}

// ResetLearntValue implements the Store interface.
func (s *SQLiteStore) ResetLearntValue(turnID int) error {
	_, err := s.db.Exec("DELETE FROM learnt WHERE turn_id = ?", turnID)
	return errors.Wrapf(err, "resetting turn id %d", turnID)
}

// ResetAllLearntValues implements the Store interface.
func (s *SQLiteStore) ResetAllLearntValues() error {
	_, err := s.db.Exec("DELETE FROM learnt")
	return errors.Wrap(err, "resetting learnt table")
}

// Close implements the Store interface.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
