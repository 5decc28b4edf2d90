// Package transfer uploads produced files to remote FTP servers.
package transfer

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"dasladen/internal/errors"
)

// DefaultPort is used when an endpoint names no port.
const DefaultPort = 21

// Endpoint addresses an FTP server.
type Endpoint struct {
	Host string
	Port int
	User string
	Pass string
}

func (e Endpoint) addr() string {
	if _, _, err := net.SplitHostPort(e.Host); err == nil {
		return e.Host
	}
	port := e.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// Conn is the part of an FTP session the uploader needs.
type Conn interface {
	List(path string) ([]*ftp.Entry, error)
	Stor(path string, r io.Reader) error
	Quit() error
}

// Dialer opens an authenticated session.
type Dialer func(ctx context.Context, ep Endpoint) (Conn, error)

// DialFTP connects with jlaffaye/ftp and logs in.
func DialFTP(ctx context.Context, ep Endpoint) (Conn, error) {
	c, err := ftp.Dial(ep.addr(), ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, errors.IO(errors.Wrapf(err, "dial ftp %s", ep.addr()))
	}
	if err := c.Login(ep.User, ep.Pass); err != nil {
		_ = c.Quit()
		return nil, errors.IO(errors.Wrapf(err, "ftp login as %q", ep.User))
	}
	return c, nil
}

// Client uploads files through Dial. A zero Client uses DialFTP.
type Client struct {
	Dial Dialer
}

// UploadIfNewer stores local at remote unless the remote file exists with a
// modification time at or after the local one. It reports whether the file
// was sent.
func (c Client) UploadIfNewer(ctx context.Context, ep Endpoint, local, remote string) (bool, error) {
	st, err := os.Stat(local)
	if err != nil {
		return false, errors.IO(errors.Wrap(err, "stat upload source"))
	}
	dial := c.Dial
	if dial == nil {
		dial = DialFTP
	}
	conn, err := dial(ctx, ep)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Quit() }()

	remote = path.Clean("/" + strings.TrimPrefix(remote, "/"))
	if cur := lookup(conn, remote); cur != nil && !cur.Time.IsZero() && !st.ModTime().After(cur.Time) {
		return false, nil
	}

	f, err := os.Open(local)
	if err != nil {
		return false, errors.IO(err)
	}
	defer f.Close()
	if err := conn.Stor(remote, f); err != nil {
		return false, errors.IO(errors.Wrapf(err, "store %s", remote))
	}
	return true, nil
}

// lookup finds remote in its parent listing. Listing failures count as absent.
func lookup(conn Conn, remote string) *ftp.Entry {
	entries, err := conn.List(path.Dir(remote))
	if err != nil {
		return nil
	}
	name := path.Base(remote)
	for _, e := range entries {
		if e.Type == ftp.EntryTypeFile && path.Base(e.Name) == name {
			return e
		}
	}
	return nil
}
