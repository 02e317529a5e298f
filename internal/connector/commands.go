package connector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/elfinder/internal/logging"
)

type handler func(s *session) (Response, error)

// registerHandlers builds the command table once. Disabled commands and
// commands whose collaborators are missing are left out.
func (c *Connector) registerHandlers() map[string]handler {
	handlers := map[string]handler{
		"open": (*session).open,
	}
	if c.tmbDir != "" && c.images != nil {
		handlers["tmb"] = (*session).tmb
	}
	for _, name := range c.opts.Disabled {
		delete(handlers, name)
	}
	return handlers
}

// Commands returns the sorted names of the enabled commands.
func (c *Connector) Commands() []string {
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// open returns the working directory, its content and optionally the tree.
func (s *session) open() (Response, error) {
	c := s.c
	resp := &OpenResponse{}
	if s.req.Init {
		resp.API = APIVersion
	}

	path := c.opts.Root
	if s.req.Target != "" {
		p, err := c.Resolve(s.ctx, s.req.Target, "")
		if err != nil {
			return nil, err
		}
		path = p
	}

	cwd, err := s.cwd(path)
	if err != nil {
		return nil, err
	}
	resp.Cwd = cwd

	if resp.Cdc, err = s.cdc(path); err != nil {
		return nil, err
	}

	if s.req.Tree {
		if resp.Tree, err = s.buildTree(c.opts.Root); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (s *session) cwd(path string) (*CwdInfo, error) {
	c := s.c
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.displayPath(path))
	}

	name := filepath.Base(path)
	rm := true
	if path == c.opts.Root {
		name = c.rootName()
		rm = false
	}

	return &CwdInfo{
		Hash:  Hash(path),
		Name:  name,
		Mime:  MimeDirectory,
		Rel:   c.displayPath(path),
		Size:  0,
		Date:  st.ModTime().In(s.now.Location()).Format(dateLayout),
		Read:  true,
		Write: c.IsAllowed(path, ModeWrite),
		Rm:    rm && c.IsAllowed(path, ModeRm),
	}, nil
}

// cdc lists the accepted children of path, directories first. Entries that
// disappear between readdir and stat are dropped.
func (s *session) cdc(path string) ([]*EntryInfo, error) {
	c := s.c
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w to %q", ErrAccessDenied, c.displayPath(path))
		}
		return nil, fmt.Errorf("read dir %s: %w", c.displayPath(path), err)
	}

	dirs := make([]*EntryInfo, 0, len(entries))
	var files []*EntryInfo
	for _, e := range entries {
		if !c.IsAccepted(e.Name()) {
			continue
		}
		info, err := s.describe(filepath.Join(path, e.Name()))
		if err != nil {
			if isContextErr(err) {
				return nil, err
			}
			logging.WithContext(s.ctx).Debug("skipping entry",
				zap.String("name", e.Name()), zap.Error(err))
			continue
		}
		if info.Mime == MimeDirectory {
			dirs = append(dirs, info)
		} else {
			files = append(files, info)
		}
	}
	return append(dirs, files...), nil
}

// tmb renders missing thumbnails for images in the current directory, at
// most TmbAtOnce per call. Tmb in the response tells the client to call
// again. Images that fail to render do not count toward the batch.
func (s *session) tmb() (Response, error) {
	c := s.c
	dir := c.opts.Root
	if s.req.Current != "" {
		p, err := c.Resolve(s.ctx, s.req.Current, "")
		if err != nil {
			return nil, err
		}
		dir = p
	}

	resp := &TmbResponse{
		Current: Hash(dir),
		Images:  map[string]string{},
	}
	if dir == c.tmbDir {
		return resp, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w to %q", ErrAccessDenied, c.displayPath(dir))
	}

	done := 0
	for _, e := range entries {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		if !c.IsAccepted(e.Name()) {
			continue
		}
		src := filepath.Join(dir, e.Name())
		image, ok := imageSource(src, e)
		if !ok {
			continue
		}
		dst := c.thumbnailPath(src)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if !c.IsAllowed(src, ModeRead) || !c.IsAllowed(image, ModeRead) {
			continue
		}
		if done >= c.opts.TmbAtOnce {
			resp.Tmb = true
			break
		}
		if err := c.images.Thumbnail(image, dst, c.opts.TmbSize); err != nil {
			logging.WithContext(s.ctx).Debug("thumbnail failed",
				zap.String("path", src), zap.Error(err))
			continue
		}
		done++
		resp.Images[Hash(src)] = c.pathURL(dst)
	}
	return resp, nil
}

// imageSource returns the file a thumbnail of entry src is rendered from:
// src itself, or the target of a link. Non-images and non-regular files
// report false.
func imageSource(src string, e fs.DirEntry) (string, bool) {
	image := src
	if e.Type()&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(src)
		if err != nil {
			return "", false
		}
		image = target
	} else if !e.Type().IsRegular() {
		return "", false
	}
	st, err := os.Stat(image)
	if err != nil || !st.Mode().IsRegular() {
		return "", false
	}
	return image, strings.HasPrefix(mimeType(image), "image/")
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
