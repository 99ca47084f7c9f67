package datastores

import (
	"context"
	"fmt"
	"strings"
)

// Open returns the [ContactsStore] described by dsn:
//
//   - "" or "memory": a [ContactsInmem] seeded with seed
//   - "sqlite:<path>": a [ContactsSQL] backed by a SQLite file
//   - "postgres://..." or "postgresql://...": a [ContactsSQL] backed by PostgreSQL
//
// Seed contacts are only inserted in the in-memory store or in an empty SQL table.
func Open(ctx context.Context, dsn string, seed ...*Contact) (ContactsStore, error) {
	var (
		store *ContactsSQL
		err   error
	)
	switch {
	case dsn == "", dsn == "memory":
		return NewContactsInmem(seed...), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		store, err = newContactsSQL(ctx, dialectSQLite, strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		store, err = newContactsSQL(ctx, dialectPostgres, dsn)
	default:
		return nil, fmt.Errorf("unsupported store %q", dsn)
	}
	if err != nil {
		return nil, err
	}

	if err := seedEmpty(ctx, store, seed); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func seedEmpty(ctx context.Context, store ContactsStore, seed []*Contact) error {
	if len(seed) == 0 {
		return nil
	}
	existing, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, c := range seed {
		if _, err := store.Create(ctx, c); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}
