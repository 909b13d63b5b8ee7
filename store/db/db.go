package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/store"
	"github.com/hrygo/tensai/store/db/postgres"
	"github.com/hrygo/tensai/store/db/sqlite"
)

// driver is implemented by every database backend. One connection serves both
// logical stores when they resolve to the same DSN.
type driver interface {
	store.Driver
	store.VectorDriver
}

// NewDBDriver opens the message store and the vector store described by profile.
func NewDBDriver(p *profile.Profile) (store.Driver, store.VectorDriver, error) {
	defaultConn, err := p.Resolve(profile.TargetDefault)
	if err != nil {
		return nil, nil, err
	}
	vectorConn, err := p.Resolve(profile.TargetVector)
	if err != nil {
		return nil, nil, err
	}

	messages, err := open(defaultConn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create db driver")
	}
	if vectorConn.DSN == defaultConn.DSN {
		return messages, messages, nil
	}

	vectors, err := open(vectorConn)
	if err != nil {
		messages.Close()
		return nil, nil, errors.Wrap(err, "failed to create vector db driver")
	}
	return messages, vectors, nil
}

func open(conn profile.Connection) (driver, error) {
	switch conn.Driver {
	case "sqlite":
		return sqlite.NewDB(conn)
	case "postgres":
		return postgres.NewDB(conn)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", conn.Driver)
	}
}
