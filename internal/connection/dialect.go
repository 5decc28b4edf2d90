package connection

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	goora "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"dasladen/internal/errors"
)

// Dialect captures what differs between database backends for the
// statements this module generates.
type Dialect struct {
	Name       string
	DriverName string // database/sql driver name
	quote      func(string) string
	bind       func(i int) string
	buildDSN   func(c Config, user, pass string) (string, error)
}

// Placeholder returns the bind marker for the 1-based parameter i.
func (d Dialect) Placeholder(i int) string { return d.bind(i) }

// Quote quotes an identifier (table, schema or column name).
func (d Dialect) Quote(ident string) string { return d.quote(ident) }

// QualifiedTable renders [schema.]table.
func (d Dialect) QualifiedTable(schema, table string) string {
	if strings.TrimSpace(schema) == "" {
		return d.quote(table)
	}
	return d.quote(schema) + "." + d.quote(table)
}

func doubleQuote(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
func backQuote(s string) string   { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }
func bracket(s string) string     { return "[" + strings.ReplaceAll(s, "]", "]]") + "]" }

func question(int) string   { return "?" }
func dollar(i int) string   { return "$" + strconv.Itoa(i) }
func atP(i int) string      { return "@p" + strconv.Itoa(i) }
func colonNum(i int) string { return ":" + strconv.Itoa(i) }

var dialects = map[string]Dialect{
	"mysql": {
		Name: "MySQL", DriverName: "mysql", quote: backQuote, bind: question,
		buildDSN: func(c Config, user, pass string) (string, error) {
			cfg := mysql.NewConfig()
			cfg.User = user
			cfg.Passwd = pass
			cfg.Net = "tcp"
			cfg.Addr = net.JoinHostPort(orDefault(c.Host, "localhost"), c.Port.Or("3306"))
			cfg.DBName = c.Database
			cfg.ParseTime = true
			if c.Charset != "" {
				cfg.Params = map[string]string{"charset": c.Charset}
			}
			return cfg.FormatDSN(), nil
		},
	},
	"postgresql": {
		Name: "PostgreSQL", DriverName: "pgx", quote: doubleQuote, bind: dollar,
		buildDSN: func(c Config, user, pass string) (string, error) {
			u := url.URL{
				Scheme: "postgres",
				Host:   net.JoinHostPort(orDefault(c.Host, "localhost"), c.Port.Or("5432")),
				Path:   "/" + c.Database,
			}
			if user != "" {
				u.User = url.UserPassword(user, pass)
			}
			if c.Charset != "" {
				u.RawQuery = url.Values{"client_encoding": {c.Charset}}.Encode()
			}
			return u.String(), nil
		},
	},
	"mssql": {
		Name: "MSSQL", DriverName: "sqlserver", quote: bracket, bind: atP,
		buildDSN: func(c Config, user, pass string) (string, error) {
			u := url.URL{
				Scheme: "sqlserver",
				Host:   net.JoinHostPort(orDefault(c.Host, "localhost"), c.Port.Or("1433")),
			}
			if user != "" {
				u.User = url.UserPassword(user, pass)
			}
			q := url.Values{}
			if c.Database != "" {
				q.Set("database", c.Database)
			}
			u.RawQuery = q.Encode()
			return u.String(), nil
		},
	},
	"oracle": {
		Name: "Oracle", DriverName: "oracle", quote: doubleQuote, bind: colonNum,
		buildDSN: func(c Config, user, pass string) (string, error) {
			if c.Service == "" {
				return "", errors.Configurationf("connection %q: oracle requires service", c.Name)
			}
			return goora.BuildUrl(orDefault(c.Host, "localhost"), c.Port.Int(1521), c.Service, user, pass, nil), nil
		},
	},
	"sqlite": {
		Name: "SQLite", DriverName: "sqlite", quote: doubleQuote, bind: question,
		buildDSN: func(c Config, _, _ string) (string, error) {
			if c.Database == "" {
				return "", errors.Configurationf("connection %q: sqlite requires database", c.Name)
			}
			return c.Database, nil
		},
	},
}

var driverAliases = map[string]string{
	"postgres":  "postgresql",
	"pgsql":     "postgresql",
	"sqlserver": "mssql",
	"sqlite3":   "sqlite",
}

// LookupDialect maps a connection's driver discriminator to its dialect.
func LookupDialect(driver string) (Dialect, error) {
	key := strings.ToLower(strings.TrimSpace(driver))
	if alias, ok := driverAliases[key]; ok {
		key = alias
	}
	d, ok := dialects[key]
	if !ok {
		return Dialect{}, errors.Mark(fmt.Errorf("driver %q: %w", driver, ErrNotImplemented), errors.ErrConfiguration)
	}
	return d, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
