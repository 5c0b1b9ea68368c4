package factory

import (
	"context"
	"errors"
	"strings"

	"github.com/scoutd/scoutd/internal/store"
	"github.com/scoutd/scoutd/internal/store/postgres"
	"github.com/scoutd/scoutd/internal/store/sqlite"
)

// New builds a ready-to-use store.Store from a DSN: postgres:// URLs use
// pgx, everything else is treated as a SQLite path (sqlite:// prefix
// optional). The schema is created if missing.
func New(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("store: empty DSN")
	}
	var (
		st  store.Store
		err error
	)
	ld := strings.ToLower(d)
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		st, err = postgres.New(d)
	} else {
		st, err = sqlite.New(strings.TrimPrefix(d, "sqlite://"))
	}
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
