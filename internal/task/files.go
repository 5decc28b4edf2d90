package task

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"dasladen/internal/archive"
	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/transfer"
	"dasladen/pkg/logx"
)

func runZip(_ context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error {
	label := item.Label()
	spec, err := descriptor.DecodeItem[itemSpec](item)
	if err != nil {
		return err
	}
	src, err := spec.source(label)
	if err != nil {
		return err
	}
	if len(src.Files) == 0 {
		return errors.Configurationf("task %q: source.files is required", label)
	}

	srcDir := env.Folders.Resolve(src.Path, "output")
	name := src.Files[0] + archive.Ext
	dstDir := srcDir
	if spec.Target != nil {
		if spec.Target.File != "" {
			name = spec.Target.File
		}
		if spec.Target.Path != "" {
			dstDir = env.Folders.Resolve(spec.Target.Path, "output")
		}
	}
	if !strings.HasSuffix(name, archive.Ext) {
		name += archive.Ext
	}

	entries := make([]archive.Entry, len(src.Files))
	for i, f := range src.Files {
		entries[i] = archive.Entry{Path: filepath.Join(srcDir, f), Name: f}
	}
	dest := filepath.Join(dstDir, name)
	if err := archive.Create(dest, entries); err != nil {
		return err
	}
	if st, err := os.Stat(dest); err == nil {
		log.Printf("Archive created: %s (%d files, %s)", name, len(entries), humanize.Bytes(uint64(st.Size())))
	}

	for _, f := range src.RemoveAfter {
		if err := os.Remove(filepath.Join(srcDir, f)); err != nil {
			return errors.IO(errors.Wrapf(err, "remove %s", f))
		}
	}
	return nil
}

func runFTPUpload(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error {
	label := item.Label()
	spec, err := descriptor.DecodeItem[itemSpec](item)
	if err != nil {
		return err
	}
	src, err := spec.source(label)
	if err != nil {
		return err
	}
	tgt, err := spec.target(label)
	if err != nil {
		return err
	}
	if err := needKey(label, "source.file", src.File); err != nil {
		return err
	}
	if err := needKey(label, "target.connection", tgt.Connection); err != nil {
		return err
	}

	conn, err := env.Connections.GetConnection(tgt.Connection)
	if err != nil {
		return err
	}
	user, pass, err := conn.Credentials()
	if err != nil {
		return err
	}
	ep := transfer.Endpoint{Host: conn.Host, Port: conn.Port.Int(transfer.DefaultPort), User: user, Pass: pass}

	local := filepath.Join(env.Folders.Resolve(src.Path, "output"), src.File)
	remoteName := tgt.File
	if remoteName == "" {
		remoteName = src.File
	}
	remote := path.Join("/", filepath.ToSlash(tgt.Path), remoteName)

	sent, err := env.FTP.UploadIfNewer(ctx, ep, local, remote)
	if err != nil {
		return err
	}
	if sent {
		log.Printf("Uploaded %s to %s:%s", src.File, conn.Host, remote)
	} else {
		log.Printf("Remote %s is up to date", remote)
	}
	return nil
}
