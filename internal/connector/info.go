package connector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/elfinder/internal/logging"
)

const (
	clockLayout = "15:04"
	dateLayout  = "02 Jan 2006 15:04"
)

type entryKind int

const (
	kindFile entryKind = iota
	kindDir
	kindLink
)

func kindOf(info fs.FileInfo) entryKind {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		return kindLink
	case info.IsDir():
		return kindDir
	default:
		return kindFile
	}
}

// formatDate buckets t against the session's day boundaries.
func (s *session) formatDate(t time.Time) string {
	t = t.In(s.now.Location())
	switch {
	case !t.Before(s.today):
		return "Today " + t.Format(clockLayout)
	case !t.Before(s.yesterday):
		return "Yesterday " + t.Format(clockLayout)
	default:
		return t.Format(dateLayout)
	}
}

// describe builds the listing record of path. Only a failed lstat is an
// error; problems with link targets, images and thumbnails leave the
// affected fields empty.
func (s *session) describe(path string) (*EntryInfo, error) {
	c := s.c
	st, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	info := &EntryInfo{
		Name:  filepath.Base(path),
		Hash:  Hash(path),
		Date:  s.formatDate(st.ModTime()),
		Read:  c.IsAllowed(path, ModeRead),
		Write: c.IsAllowed(path, ModeWrite),
		Rm:    c.IsAllowed(path, ModeRm),
	}

	kind := kindOf(st)
	if kind == kindDir {
		info.Mime = MimeDirectory
		size, err := s.dirSize(path, st)
		if err != nil {
			return nil, err
		}
		info.Size = size
	} else {
		info.Mime = mimeType(path)
		info.Size = st.Size()
	}

	target := ""
	if kind == kindLink {
		target, err = filepath.EvalSymlinks(path)
		if err != nil {
			logging.WithContext(s.ctx).Debug("broken symlink",
				zap.String("path", path), zap.Error(err))
			info.Mime = MimeBrokenLink
			return info, nil
		}
		tst, err := os.Stat(target)
		if err != nil {
			info.Mime = MimeBrokenLink
			return info, nil
		}
		if tst.IsDir() {
			info.Mime = MimeDirectory
		} else {
			info.Parent = Hash(filepath.Dir(target))
			info.Mime = mimeType(target)
		}
		info.Link = Hash(target)
		info.LinkTo = c.displayPath(target)
		info.Read = info.Read && c.IsAllowed(target, ModeRead)
		info.Write = info.Write && c.IsAllowed(target, ModeWrite)
		info.Rm = info.Rm && c.IsAllowed(target, ModeRm)
	}

	if info.Mime == MimeDirectory {
		return info, nil
	}

	if c.opts.FileURL && info.Read {
		if target != "" {
			info.URL = c.pathURL(target)
		} else {
			info.URL = c.pathURL(path)
		}
	}

	if strings.HasPrefix(info.Mime, "image/") {
		s.imageFields(path, info)
	}
	return info, nil
}

func (s *session) imageFields(path string, info *EntryInfo) {
	c := s.c
	if w, h, err := c.images.Dimensions(path); err == nil {
		info.Dim = strconv.Itoa(w) + "x" + strconv.Itoa(h)
		info.Resize = true
	} else {
		logging.WithContext(s.ctx).Debug("image header unreadable",
			zap.String("path", path), zap.Error(err))
	}

	if c.tmbDir == "" {
		return
	}
	if filepath.Dir(path) == c.tmbDir {
		info.Tmb = c.pathURL(path)
		return
	}
	tmb := c.thumbnailPath(path)
	if _, err := os.Stat(tmb); err == nil {
		info.Tmb = c.pathURL(tmb)
	}
}

// thumbnailPath is where the thumbnail store keeps the rendering of path.
func (c *Connector) thumbnailPath(path string) string {
	return filepath.Join(c.tmbDir, Hash(path)+".png")
}

// dirSize sums regular file sizes below path when enabled, otherwise it
// returns the directory's own size. Entries that vanish or cannot be read
// mid-walk are skipped.
func (s *session) dirSize(path string, st fs.FileInfo) (int64, error) {
	if !s.c.opts.DirSize {
		return st.Size(), nil
	}

	base := strings.Count(path, string(filepath.Separator))
	var total int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if cerr := s.ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.Count(p, string(filepath.Separator))-base >= s.c.opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		fi, err := os.Stat(p)
		if err != nil || fi.IsDir() {
			return nil
		}
		total += fi.Size()
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipDir) {
		return 0, err
	}
	return total, nil
}

// displayPath renders path the way the client shows it: prefixed by the
// root alias and relative to root.
func (c *Connector) displayPath(path string) string {
	rel, ok := c.relToRoot(path)
	if !ok {
		return filepath.Base(path)
	}
	return c.rootName() + rel
}

func (c *Connector) rootName() string {
	if c.opts.RootAlias != "" {
		return c.opts.RootAlias
	}
	return filepath.Base(c.opts.Root)
}

// pathURL builds the public URL of a file below root. Paths outside root
// have no URL.
func (c *Connector) pathURL(path string) string {
	rel, ok := c.relToRoot(path)
	if !ok || rel == "" {
		return ""
	}
	return quoteURL(c.opts.URL+filepath.ToSlash(rel), "/:~")
}

// quoteURL percent-encodes every byte outside the unreserved set and safe.
func quoteURL(s, safe string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isUnreserved(ch) || strings.IndexByte(safe, ch) >= 0 {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[ch>>4])
		b.WriteByte(hexDigits[ch&0x0f])
	}
	return b.String()
}

func isUnreserved(ch byte) bool {
	return 'a' <= ch && ch <= 'z' ||
		'A' <= ch && ch <= 'Z' ||
		'0' <= ch && ch <= '9' ||
		ch == '-' || ch == '_' || ch == '.' || ch == '~'
}
