package connector

import (
	"os"
	"path/filepath"
	"strings"
)

// Access modes understood by IsAllowed.
const (
	ModeRead  = "read"
	ModeWrite = "write"
	ModeRm    = "rm"
)

// IsAllowed reports whether mode is permitted on path. The OS must grant
// it (removal needs a writable parent) and so must the configured policy.
// Missing paths allow nothing.
func (c *Connector) IsAllowed(path, mode string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}

	var osOK bool
	switch mode {
	case ModeRead:
		osOK = canRead(path)
	case ModeWrite:
		osOK = canWrite(path)
	case ModeRm:
		osOK = canWrite(filepath.Dir(path))
	default:
		return false
	}
	return osOK && c.policyAllows(path, mode)
}

func (c *Connector) policyAllows(path, mode string) bool {
	rel := c.relSlash(path)
	for _, r := range c.rules {
		if !r.re.MatchString(rel) {
			continue
		}
		var flag *bool
		switch mode {
		case ModeRead:
			flag = r.Read
		case ModeWrite:
			flag = r.Write
		case ModeRm:
			flag = r.Rm
		}
		if flag != nil {
			return *flag
		}
	}

	switch mode {
	case ModeRead:
		return c.opts.Defaults.Read
	case ModeWrite:
		return c.opts.Defaults.Write
	default:
		return c.opts.Defaults.Rm
	}
}

// IsAccepted is the listing filter: the "." and ".." pseudo-entries never
// pass, dot-files pass only when enabled.
func (c *Connector) IsAccepted(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.HasPrefix(name, ".") && !c.opts.DotFiles {
		return false
	}
	return true
}

// relSlash returns path relative to root in slash form with a leading
// slash, "/" for root itself.
func (c *Connector) relSlash(path string) string {
	rel, ok := c.relToRoot(path)
	if !ok {
		return filepath.ToSlash(path)
	}
	return "/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")
}

// relToRoot returns the suffix of path after root ("" for root itself)
// and whether path lies inside root at all.
func (c *Connector) relToRoot(path string) (string, bool) {
	root := c.opts.Root
	if path == root {
		return "", true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return path[len(root):], true
}
