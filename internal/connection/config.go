package connection

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"dasladen/internal/errors"
)

// Config is one named entry of a descriptor's "connections" list. Database
// handlers use the driver fields, transfer handlers use host/port/user/pass.
type Config struct {
	Name     string `json:"name"`
	Driver   string `json:"driver,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     Port   `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Pass     string `json:"pass,omitempty"`
	Database string `json:"database,omitempty"`
	Service  string `json:"service,omitempty"`
	Charset  string `json:"charset,omitempty"`
	Schema   string `json:"schema,omitempty"`
	// DSN bypasses DSN construction when set.
	DSN string `json:"dsn,omitempty"`

	Environment  []EnvVar `json:"environment,omitempty"`
	Initializing []string `json:"initializing,omitempty"`
}

type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Port accepts 1521 or "1521".
type Port string

func (p *Port) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Port(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = Port(n.String())
	return nil
}

func (p Port) Int(def int) int {
	if n, err := strconv.Atoi(string(p)); err == nil && n > 0 {
		return n
	}
	return def
}

func (p Port) Or(def string) string {
	if p == "" {
		return def
	}
	return string(p)
}

const envPrefix = "$env."

// Resolve returns the value of the environment variable NAME when v is
// "$env.NAME", otherwise v unchanged.
func Resolve(v string) (string, error) {
	if len(v) <= len(envPrefix) || !strings.HasPrefix(v, envPrefix) {
		return v, nil
	}
	name := v[len(envPrefix):]
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", errors.Configurationf("environment variable %q is not set", name)
	}
	return val, nil
}

// Credentials resolves user and pass through Resolve.
func (c Config) Credentials() (user, pass string, err error) {
	if user, err = Resolve(c.User); err != nil {
		return "", "", errors.Wrapf(err, "connection %q user", c.Name)
	}
	if pass, err = Resolve(c.Pass); err != nil {
		return "", "", errors.Wrapf(err, "connection %q pass", c.Name)
	}
	return user, pass, nil
}
