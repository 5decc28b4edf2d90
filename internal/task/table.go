package task

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/recordset"
	"dasladen/pkg/logx"
)

// SkippedMessage is logged when a table task's source has no rows.
const SkippedMessage = "Task skipped. No rows on source"

// tableTask moves records from one source kind to one sink kind.
type tableTask struct {
	from string // csv, db, xls, xml
	to   string // csv, db
}

var tableTasks = map[string]tableTask{
	"csv-csv": {"csv", "csv"},
	"csv-db":  {"csv", "db"},
	"db-csv":  {"db", "csv"},
	"db-db":   {"db", "db"},
	"xls-csv": {"xls", "csv"},
	"xml-csv": {"xml", "csv"},
	"xml-db":  {"xml", "db"},
}

func (tt tableTask) Run(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error {
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

	t, err := tt.read(ctx, env, src, label)
	if err != nil {
		return err
	}
	if t.Empty() {
		log.Println(SkippedMessage)
		return nil
	}
	if err := applyTransforms(ctx, env, spec, t, log); err != nil {
		return err
	}

	pl := env.progressLog(item)
	defer pl.Close()
	start := env.now()
	progress := func(rows int) {
		el := env.now().Sub(start)
		rate := float64(rows)
		if s := el.Seconds(); s > 0 {
			rate /= s
		}
		pl.Printf("%s rows in %.2fs (%s row/s)", humanize.Comma(int64(rows)), el.Seconds(), humanize.Comma(int64(rate)))
	}

	n, err := tt.write(ctx, env, tgt, t, label, progress)
	if err != nil {
		return err
	}
	pl.Printf("%s rows written (%s), %s", humanize.Comma(int64(n)), tgt.mode(), env.now().Sub(start).Round(time.Millisecond))
	return nil
}

func (tt tableTask) read(ctx context.Context, env *Env, src Endpoint, label string) (*recordset.Table, error) {
	if tt.from == "db" {
		if err := needKey(label, "source.connection", src.Connection); err != nil {
			return nil, err
		}
		sql, err := SQLText(src, env.Folders)
		if err != nil {
			return nil, errors.Wrapf(err, "task %q", label)
		}
		h, err := env.Connections.GetDriver(ctx, src.Connection)
		if err != nil {
			return nil, err
		}
		defer h.Close()
		return recordset.ReadQuery(ctx, h.DB, sql)
	}

	if err := needKey(label, "source.file", src.File); err != nil {
		return nil, err
	}
	path := filepath.Join(env.Folders.Resolve(src.Folder, "input"), src.File)
	switch tt.from {
	case "csv":
		return recordset.ReadCSV(path, src.csv())
	case "xls":
		return recordset.ReadSheet(path, src.Sheet)
	case "xml":
		t, err := recordset.ReadXML(path, src.xml())
		return t, errors.Wrapf(err, "task %q", label)
	}
	return nil, errors.Configurationf("task %q: unknown source kind %q", label, tt.from)
}

func (tt tableTask) write(ctx context.Context, env *Env, tgt Endpoint, t *recordset.Table, label string, progress recordset.Progress) (int, error) {
	switch tt.to {
	case "csv":
		if err := needKey(label, "target.file", tgt.File); err != nil {
			return 0, err
		}
		path := filepath.Join(env.Folders.Resolve(tgt.Folder, "output"), tgt.File)
		return recordset.WriteCSV(path, t, tgt.csv(), tgt.mode(), progress)
	case "db":
		if err := needKey(label, "target.connection", tgt.Connection); err != nil {
			return 0, err
		}
		if err := needKey(label, "target.table", tgt.Table); err != nil {
			return 0, err
		}
		h, err := env.Connections.GetDriver(ctx, tgt.Connection)
		if err != nil {
			return 0, err
		}
		defer h.Close()
		schema := tgt.Schema
		if schema == "" {
			schema = h.Config.Schema
		}
		return recordset.WriteTable(ctx, h.DB, h.Dialect, recordset.TableTarget{Schema: schema, Table: tgt.Table}, t, tgt.mode(), progress)
	}
	return 0, errors.Configurationf("task %q: unknown target kind %q", label, tt.to)
}
