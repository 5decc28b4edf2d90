package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dasladen/internal/archive"
	"dasladen/internal/descriptor"
	"dasladen/internal/errors"
	"dasladen/internal/script"
	"dasladen/pkg/logx"
)

// extractAll processes every archive of files. Each archive gets its own
// staging area, which is removed when the archive is done.
func (p *Pipeline) extractAll(ctx context.Context, dir string, files []string, log *logx.RunLog, depth int) {
	for _, f := range files {
		if !archive.IsArchive(f) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := p.extractOne(ctx, dir, f, log, depth); err != nil {
			log.Printf("Error: %+v", err)
		}
	}
}

func (p *Pipeline) extractOne(ctx context.Context, dir, name string, log *logx.RunLog, depth int) error {
	if depth >= p.cfg.MaxNesting {
		log.Printf("Skipping ZIP: %s, nesting deeper than %d", name, p.cfg.MaxNesting)
		return nil
	}
	root := p.cfg.Folders.Root
	if root == "" {
		root = "."
	}
	staging, err := os.MkdirTemp(root, stagingPattern)
	if err != nil {
		return errors.IO(errors.Wrap(err, "create staging area"))
	}
	log.Printf("Creating Temporary Dir: %s", staging)
	defer func() {
		log.Printf("Removing Temporary Dir: %s", staging)
		if err := os.RemoveAll(staging); err != nil {
			log.Printf("Error: %+v", errors.IO(err))
		}
	}()

	start := p.now()
	src := filepath.Join(dir, name)
	log.Printf("Extracting: %s into '%s'", name, staging)
	err = archive.Extract(src, staging, p.cfg.Limits)
	if err == nil {
		log.Printf("Removing ZIP: %s", name)
		if rmErr := os.Remove(src); rmErr != nil {
			err = errors.IO(rmErr)
		}
	}
	p.finished(log, name, start)
	if err != nil {
		return err
	}

	files, err := listFiles(staging)
	if err != nil {
		return err
	}
	p.extractAll(ctx, staging, files, log, depth+1)
	p.relocateAll(staging, files, log)
	p.executeAll(ctx, staging, files, log)
	return nil
}

// relocateAll copies descriptors to the input folder and moves every other
// non-archive entry to the module or input folder. Directories go to input
// as a whole.
func (p *Pipeline) relocateAll(dir string, files []string, log *logx.RunLog) {
	for _, f := range files {
		if archive.IsArchive(f) {
			continue
		}
		src := filepath.Join(dir, f)
		st, err := os.Stat(src)
		if err != nil {
			log.Printf("Error: %+v", errors.IO(err))
			continue
		}
		start := p.now()
		switch {
		case st.IsDir():
			log.Printf("Moving Directory: %s", f)
			err = moveDir(src, filepath.Join(p.cfg.Folders.Input, f))
		case st.Mode().IsRegular():
			log.Printf("Moving File: %s", f)
			err = p.relocateOne(src, f)
		default:
			log.Printf("Skipping: %s, not a regular file", f)
			continue
		}
		if err != nil {
			log.Printf("Error: %+v", err)
		}
		p.finished(log, f, start)
	}
}

func (p *Pipeline) relocateOne(src, name string) error {
	if descriptor.IsDescriptor(src) {
		return copyFile(src, filepath.Join(p.cfg.Folders.Input, name))
	}
	target := p.cfg.Folders.Input
	if strings.EqualFold(filepath.Ext(name), script.Ext) {
		target = p.cfg.Folders.Module
	}
	return moveFile(src, filepath.Join(target, name))
}

// executeAll dispatches every descriptor of files and deletes it afterwards.
func (p *Pipeline) executeAll(ctx context.Context, dir string, files []string, log *logx.RunLog) {
	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(dir, f)
		if !descriptor.IsDescriptor(path) {
			continue
		}
		p.executeOne(ctx, path, f, log)
	}
}

func (p *Pipeline) executeOne(ctx context.Context, path, name string, log *logx.RunLog) {
	start := p.now()
	defer func() {
		p.finished(log, name, start)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Error: %+v", errors.IO(err))
		}
	}()

	d, err := descriptor.Load(path)
	if err == nil {
		err = p.Dispatch(ctx, name, d, log)
	}
	if err != nil {
		log.Printf("Error: %+v", err)
	}
}

// listFiles returns the entry names of dir, sorted.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.IO(err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}
