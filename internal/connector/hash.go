package connector

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Hash returns the opaque identifier of path: the hex MD5 of its bytes.
// It never touches the filesystem. The empty path has no identifier.
func Hash(path string) string {
	if path == "" {
		return ""
	}
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// validHash reports whether id has the shape Hash produces.
func validHash(id string) bool {
	if len(id) != 2*md5.Size {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// Resolve maps an identifier back to a directory path by walking real
// directories below searchRoot (the configured root when empty). A symlink
// to a directory can match by its own path but is never descended into.
// Entries rejected by the accept filter are not visited.
func (c *Connector) Resolve(ctx context.Context, id, searchRoot string) (string, error) {
	if searchRoot == "" {
		searchRoot = c.opts.Root
	}
	if id == Hash(searchRoot) {
		return searchRoot, nil
	}
	if !validHash(id) {
		return "", fmt.Errorf("%w: malformed identifier %q", ErrBadRequest, id)
	}

	path, err := c.findDir(ctx, id, searchRoot, 0)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w: no directory with identifier %s", ErrNotFound, id)
	}
	return path, nil
}

func (c *Connector) findDir(ctx context.Context, id, dir string, depth int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if depth >= c.opts.MaxDepth {
		return "", nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", nil
	}
	for _, e := range entries {
		if !c.IsAccepted(e.Name()) {
			continue
		}
		child := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			// A link to a directory matches but is never entered
			if e.Type()&fs.ModeSymlink != 0 && Hash(child) == id && isDir(child) {
				return child, nil
			}
			continue
		}
		if Hash(child) == id {
			return child, nil
		}
		found, err := c.findDir(ctx, id, child, depth+1)
		if err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
