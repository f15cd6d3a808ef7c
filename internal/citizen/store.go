package citizen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var ErrCitizenNotFound = errors.New("citizen store: citizen not found")

// Store reads identity records from the registry database. The provider
// never writes subject attributes; Create exists for seeding and tests.
type Store struct {
	db *sql.DB
}

// Open connects to the registry database. The busy_timeout pragma must be
// first because the connection needs to block on busy before WAL mode is
// set, in case another connection has not set it yet.
func Open(dbPath string, inMemory bool) (*Store, error) {
	pragmas := "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

	dsn := dbPath + "?" + pragmas
	if inMemory {
		// mode=memory is only honored on a file: URI; a plain path would
		// silently create an on-disk database. cache=shared keeps every
		// pooled connection on the same in-memory database.
		dsn = "file:" + dbPath + "?mode=memory&cache=shared&" + pragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("citizen store: open database: %w", err)
	}
	if inMemory {
		// The database is dropped once its last connection closes.
		db.SetMaxIdleConns(1)
	}

	return &Store{db: db}, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tbl_citizen (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone_number TEXT NOT NULL DEFAULT '',
			verified INTEGER NOT NULL DEFAULT 0,
			address TEXT NOT NULL DEFAULT '',
			birth_date TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			nationality TEXT NOT NULL DEFAULT '',
			locale TEXT NOT NULL DEFAULT '',
			zoneinfo TEXT NOT NULL DEFAULT '',
			last_login_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		);`)
	if err != nil {
		return fmt.Errorf("citizen store: migrate: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, c Citizen) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tbl_citizen (
			id, first_name, last_name, email, phone_number, verified,
			address, birth_date, country, nationality, locale, zoneinfo,
			last_login_at, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		c.ID, c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.Verified,
		c.Address, c.BirthDate, c.Country, c.Nationality, c.Locale, c.Zoneinfo,
		c.LastLoginAt, c.CreatedAt,
	)
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (Citizen, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, phone_number, verified,
		       address, birth_date, country, nationality, locale, zoneinfo,
		       last_login_at, created_at
		FROM tbl_citizen WHERE id = ? LIMIT 1;`, id)

	var c Citizen
	var lastLogin sql.NullTime
	if err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PhoneNumber, &c.Verified,
		&c.Address, &c.BirthDate, &c.Country, &c.Nationality, &c.Locale, &c.Zoneinfo,
		&lastLogin, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, ErrCitizenNotFound
		}
		return c, err
	}
	if lastLogin.Valid {
		c.LastLoginAt = lastLogin.Time
	}
	return c, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
