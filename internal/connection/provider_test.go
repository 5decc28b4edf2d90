package connection

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dasladen/internal/errors"
)

func TestGetConnectionNotFound(t *testing.T) {
	p := NewProvider([]Config{{Name: "warehouse", Driver: "MySQL"}})

	c, err := p.GetConnection("warehouse")
	require.NoError(t, err)
	assert.Equal(t, "MySQL", c.Driver)

	_, err = p.GetConnection("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestGetDriverUnknownBackend(t *testing.T) {
	p := NewProvider([]Config{{Name: "x", Driver: "DB2"}})
	_, err := p.GetDriver(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotImplemented))
}

func TestGetDriverAppliesEnvironmentAndInitializing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectExec("ALTER SESSION SET NLS_DATE_FORMAT = 'YYYY-MM-DD'").WillReturnResult(sqlmock.NewResult(0, 0))

	env := map[string]string{}
	var gotDriver, gotDSN string
	p := NewProvider(
		[]Config{{
			Name:         "erp",
			Driver:       "Oracle",
			Host:         "db.local",
			Service:      "ORCL",
			User:         "scott",
			Pass:         "tiger",
			Environment:  []EnvVar{{Key: "NLS_LANG", Value: "AMERICAN_AMERICA.UTF8"}},
			Initializing: []string{"ALTER SESSION SET NLS_DATE_FORMAT = 'YYYY-MM-DD'"},
		}},
		WithOpener(func(driver, dsn string) (*sql.DB, error) {
			gotDriver, gotDSN = driver, dsn
			return db, nil
		}),
		WithSetenv(func(k, v string) error { env[k] = v; return nil }),
	)

	h, err := p.GetDriver(context.Background(), "erp")
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "oracle", gotDriver)
	assert.Contains(t, gotDSN, "db.local:1521/ORCL")
	assert.Equal(t, "AMERICAN_AMERICA.UTF8", env["NLS_LANG"])
	assert.Equal(t, ":2", h.Dialect.Placeholder(2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialIndirection(t *testing.T) {
	t.Setenv("ETL_DB_PASS", "s3cret")
	c := Config{Name: "c", User: "loader", Pass: "$env.ETL_DB_PASS"}
	user, pass, err := c.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "loader", user)
	assert.Equal(t, "s3cret", pass)

	c.Pass = "$env.ETL_MISSING_VAR"
	_, _, err = c.Credentials()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	// Too short to carry a variable name.
	v, err := Resolve("$env.")
	require.NoError(t, err)
	assert.Equal(t, "$env.", v)
}

func TestDialectDSNs(t *testing.T) {
	cases := []struct {
		driver string
		cfg    Config
		want   string
	}{
		{"MySQL", Config{Host: "h", Database: "d", Charset: "utf8"}, "u:p@tcp(h:3306)/d?"},
		{"PostgreSQL", Config{Host: "h", Port: "6543", Database: "d"}, "postgres://u:p@h:6543/d"},
		{"MSSQL", Config{Host: "h", Database: "d"}, "sqlserver://u:p@h:1433?database=d"},
		{"sqlite", Config{Database: "/tmp/x.db"}, "/tmp/x.db"},
	}
	for _, tc := range cases {
		t.Run(tc.driver, func(t *testing.T) {
			d, err := LookupDialect(tc.driver)
			require.NoError(t, err)
			dsn, err := d.buildDSN(tc.cfg, "u", "p")
			require.NoError(t, err)
			assert.Contains(t, dsn, tc.want)
		})
	}
}

func TestPortAcceptsNumberOrString(t *testing.T) {
	var cs []Config
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"a","port":1521},{"name":"b","port":"3306"}]`), &cs))
	assert.Equal(t, 1521, cs[0].Port.Int(0))
	assert.Equal(t, "3306", cs[1].Port.Or(""))
}
