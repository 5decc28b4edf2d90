package task

import (
	"context"

	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/script"
	"dasladen/pkg/logx"
)

func runSQLExec(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error {
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
	if err := needKey(label, "target.connection", tgt.Connection); err != nil {
		return err
	}
	sql, err := SQLText(src, env.Folders)
	if err != nil {
		return errors.Wrapf(err, "task %q", label)
	}

	h, err := env.Connections.GetDriver(ctx, tgt.Connection)
	if err != nil {
		return err
	}
	defer h.Close()

	tx, err := h.BeginTx(ctx, nil)
	if err != nil {
		return errors.IO(errors.Wrap(err, "begin"))
	}
	res, err := tx.ExecContext(ctx, sql)
	if err != nil {
		_ = tx.Rollback()
		return errors.IO(errors.Wrapf(err, "task %q: execute", label))
	}
	if err := tx.Commit(); err != nil {
		return errors.IO(errors.Wrap(err, "commit"))
	}
	if n, err := res.RowsAffected(); err == nil && n >= 0 {
		log.Printf("Statement executed, %d rows affected", n)
	}
	return nil
}

func runLuaExec(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error {
	label := item.Label()
	spec, err := descriptor.DecodeItem[itemSpec](item)
	if err != nil {
		return err
	}
	src, err := spec.source(label)
	if err != nil {
		return err
	}
	if err := needKey(label, "source.module", src.Module); err != nil {
		return err
	}

	st, err := openModule(ctx, env, src.Module, log)
	if err != nil {
		return err
	}
	defer st.Close()
	args := src.Args
	if args == nil {
		args = []any{}
	}
	st.SetGlobal("arg", args)
	if _, err := st.Call("main", args); err != nil {
		return errors.Transform(err)
	}
	return nil
}

type customSpec struct {
	Module string `json:"module"`
	Class  string `json:"class"`
}

func runCustom(ctx context.Context, env *Env, item descriptor.Item, log *logx.RunLog) error {
	log.Println("Loading custom task.")
	label := item.Label()
	spec, err := descriptor.DecodeItem[customSpec](item)
	if err != nil {
		return err
	}
	if err := needKey(label, "module", spec.Module); err != nil {
		return err
	}
	if err := needKey(label, "class", spec.Class); err != nil {
		return err
	}
	task, err := item.Map()
	if err != nil {
		return err
	}

	st, err := openModule(ctx, env, spec.Module, log)
	if err != nil {
		return err
	}
	defer st.Close()
	obj := st.Lookup(spec.Class)
	if _, err := st.CallMethod(obj, "run", task); err != nil {
		return errors.Transform(err)
	}
	return nil
}

// openModule loads module into a fresh state with the host functions
// log(text) and connection(name).
func openModule(ctx context.Context, env *Env, module string, log *logx.RunLog) (*script.State, error) {
	if env.Scripts == nil {
		return nil, errors.Configurationf("lua module %q: no module folder", module)
	}
	st := env.Scripts.NewState(ctx)
	st.Register("log", func(args []any) (any, error) {
		for _, a := range args {
			log.Printf("%v", a)
		}
		return nil, nil
	})
	st.Register("connection", func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("connection(name) takes one argument")
		}
		name, _ := args[0].(string)
		c, err := env.Connections.GetConnection(name)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"name":     c.Name,
			"driver":   c.Driver,
			"host":     c.Host,
			"port":     string(c.Port),
			"user":     c.User,
			"database": c.Database,
			"schema":   c.Schema,
		}, nil
	})
	if err := st.Load(module); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
