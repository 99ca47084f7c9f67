package datastores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"  // registers the "postgres" driver
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed schema/*.sql
var schemaFS embed.FS

// dialect holds what differs between the supported SQL engines.
type dialect struct {
	driver string
	// contains is a SQL function returning the 1-based position of its second
	// argument in its first one, 0 when absent. Unlike LIKE it is case-sensitive
	// and has no wildcards.
	contains string
	// numbered placeholders ($1, $2...) instead of ?
	numbered bool
}

var (
	dialectSQLite   = dialect{driver: "sqlite", contains: "instr"}
	dialectPostgres = dialect{driver: "postgres", contains: "strpos", numbered: true}
)

// rebind rewrites ? placeholders for dialects using numbered ones.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ContactsSQL implements [ContactsStore] on top of [database/sql].
type ContactsSQL struct {
	db      *sql.DB
	dialect dialect
}

var _ ContactsStore = (*ContactsSQL)(nil)

const contactColumns = `id, name, lastname, email, phone, address`

// newContactsSQL opens a database with the dialect's driver and applies the
// embedded schema.
func newContactsSQL(ctx context.Context, d dialect, dsn string) (*ContactsSQL, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.driver, err)
	}
	if d == dialectSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}

	s := &ContactsSQL{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ContactsSQL) migrate(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema/" + s.dialect.driver + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *ContactsSQL) query(ctx context.Context, query string, args ...any) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*Contact{}
	for rows.Next() {
		c := new(Contact)
		if err := rows.Scan(&c.ID, &c.Name, &c.Lastname, &c.Email, &c.Phone, &c.Address); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *ContactsSQL) List(ctx context.Context) ([]*Contact, error) {
	return s.query(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY id`)
}

func (s *ContactsSQL) Search(ctx context.Context, query string) ([]*Contact, error) {
	if query == "" {
		return s.List(ctx)
	}
	where := make([]string, 0, 5) //nolint: mnd // searched columns
	args := make([]any, 0, 5)     //nolint: mnd // searched columns
	for _, column := range []string{"name", "lastname", "address", "email", "phone"} {
		where = append(where, s.dialect.contains+"("+column+", ?) > 0")
		args = append(args, query)
	}
	return s.query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE `+strings.Join(where, " OR ")+` ORDER BY id`, args...)
}

func (s *ContactsSQL) Get(ctx context.Context, id ContactID) (*Contact, error) {
	contacts, err := s.query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	switch {
	case err != nil:
		return nil, err
	case len(contacts) == 0:
		return nil, ErrObjectNotFound
	default:
		return contacts[0], nil
	}
}

func (s *ContactsSQL) Create(ctx context.Context, c *Contact) (ContactID, error) {
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`INSERT INTO contacts (name, lastname, email, phone, address) VALUES (?, ?, ?, ?, ?) RETURNING id`),
		c.Name, c.Lastname, c.Email, c.Phone, c.Address,
	).Scan(&c.ID)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (s *ContactsSQL) Update(ctx context.Context, c *Contact) error {
	res, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`UPDATE contacts SET name = ?, lastname = ?, email = ?, phone = ?, address = ? WHERE id = ?`),
		c.Name, c.Lastname, c.Email, c.Phone, c.Address, c.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	_, err = s.Get(ctx, c.ID)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return ErrObjectNotFound
	case err != nil:
		return err
	default:
		return fmt.Errorf("%w: %d rows affected for id %d", ErrConflict, n, c.ID)
	}
}

func (s *ContactsSQL) Delete(ctx context.Context, id ContactID) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM contacts WHERE id = ?`), id)
	return err
}

func (s *ContactsSQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *ContactsSQL) Close() error { return s.db.Close() }
