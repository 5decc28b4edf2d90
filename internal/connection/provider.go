// Package connection resolves named connections of a descriptor into
// configured database handles.
package connection

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"dasladen/internal/errors"
)

var (
	// ErrNotFound is returned for a connection name the descriptor does not declare.
	ErrNotFound = errors.New("connection not found")
	// ErrNotImplemented is returned for an unsupported driver discriminator.
	ErrNotImplemented = errors.New("driver not implemented")
)

// OpenFunc opens a database/sql handle.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

type Option func(*Provider)

// WithOpener replaces sql.Open.
func WithOpener(open OpenFunc) Option {
	return func(p *Provider) {
		if open != nil {
			p.open = open
		}
	}
}

// WithSetenv replaces os.Setenv for environment entries.
func WithSetenv(fn func(key, value string) error) Option {
	return func(p *Provider) {
		if fn != nil {
			p.setenv = fn
		}
	}
}

// Provider is built per descriptor execution from its "connections" list.
type Provider struct {
	conns  []Config
	open   OpenFunc
	setenv func(key, value string) error
}

func NewProvider(conns []Config, opts ...Option) *Provider {
	p := &Provider{conns: conns, open: sql.Open, setenv: os.Setenv}
	for _, o := range opts {
		o(p)
	}
	return p
}

// GetConnection returns the first entry named name.
func (p *Provider) GetConnection(name string) (Config, error) {
	for _, c := range p.conns {
		if c.Name == name {
			return c, nil
		}
	}
	return Config{}, errors.Mark(errors.Wrapf(ErrNotFound, "connection %q", name), errors.ErrConfiguration)
}

// Handle is an open database connection plus its dialect. Callers Close it.
type Handle struct {
	*sql.DB
	Dialect Dialect
	Config  Config
}

// GetDriver applies the entry's environment variables, opens a handle for
// its driver and runs its initializing statements.
//
// The handle holds a single connection so session-level initializing
// statements stay in effect for every later statement.
func (p *Provider) GetDriver(ctx context.Context, name string) (*Handle, error) {
	c, err := p.GetConnection(name)
	if err != nil {
		return nil, err
	}
	for _, e := range c.Environment {
		if strings.TrimSpace(e.Key) == "" {
			continue
		}
		if err := p.setenv(e.Key, e.Value); err != nil {
			return nil, errors.IO(errors.Wrapf(err, "connection %q: set %s", name, e.Key))
		}
	}

	d, err := LookupDialect(c.Driver)
	if err != nil {
		return nil, errors.Wrapf(err, "connection %q", name)
	}

	dsn := c.DSN
	if dsn == "" {
		user, pass, err := c.Credentials()
		if err != nil {
			return nil, err
		}
		if dsn, err = d.buildDSN(c, user, pass); err != nil {
			return nil, err
		}
	}

	db, err := p.open(d.DriverName, dsn)
	if err != nil {
		return nil, errors.IO(errors.Wrapf(err, "connection %q: open %s", name, d.Name))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.IO(errors.Wrapf(err, "connection %q: connect %s", name, d.Name))
	}
	for _, stmt := range c.Initializing {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, errors.IO(errors.Wrapf(err, "connection %q: initializing statement", name))
		}
	}
	return &Handle{DB: db, Dialect: d, Config: c}, nil
}
