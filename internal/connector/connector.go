// Package connector implements the server side of the elFinder file-manager
// protocol: command dispatch, path identifiers, permission-gated listings
// and directory trees over a local root.
package connector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/elfinder/internal/logging"
	"github.com/fruitsalade/elfinder/internal/metrics"
	"github.com/fruitsalade/elfinder/internal/thumbs"
)

// APIVersion is stamped on "open" responses when the client initializes.
const APIVersion = "2.0"

// imageService is the image collaborator: it reads dimensions and renders
// thumbnails into the thumbnail store.
type imageService interface {
	Dimensions(path string) (width, height int, err error)
	Thumbnail(src, dst string, size int) error
}

// Connector serves protocol requests against one root. It holds no
// per-request state and is safe for concurrent use.
type Connector struct {
	opts     Options
	rules    []compiledRule
	tmbDir   string
	handlers map[string]handler
	images   imageService
	now      func() time.Time
}

// New validates opts and prepares the thumbnail directory. The root is
// checked again on every request, so a root that appears later still works.
func New(opts Options) (*Connector, error) {
	if opts.Root != "" {
		abs, err := filepath.Abs(opts.Root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", opts.Root, err)
		}
		// Link targets are compared against root in resolved form
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		opts.Root = abs
	}
	defaults := DefaultOptions()
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaults.MaxDepth
	}
	if opts.TmbAtOnce <= 0 {
		opts.TmbAtOnce = defaults.TmbAtOnce
	}
	if opts.TmbSize <= 0 {
		opts.TmbSize = defaults.TmbSize
	}

	rules, err := compileRules(opts.Perms)
	if err != nil {
		return nil, err
	}

	c := &Connector{
		opts:   opts,
		rules:  rules,
		images: thumbs.NewRenderer(opts.FileMode),
		now:    time.Now,
	}

	if opts.Root != "" && opts.TmbDir != "" {
		dir := filepath.Join(opts.Root, opts.TmbDir)
		if st, err := os.Stat(opts.Root); err == nil && st.IsDir() {
			if err := os.MkdirAll(dir, opts.DirMode); err != nil {
				return nil, fmt.Errorf("create thumbnail dir %s: %w", dir, err)
			}
		}
		c.tmbDir = dir
	}

	c.handlers = c.registerHandlers()
	return c, nil
}

// Options returns the effective options.
func (c *Connector) Options() Options {
	return c.opts
}

// ThumbnailDir returns the thumbnail store path, "" when disabled.
func (c *Connector) ThumbnailDir() string {
	return c.tmbDir
}

// Run validates the root, dispatches req and returns the response to be
// serialized. Errors are request-fatal; see the Err* values.
func (c *Connector) Run(ctx context.Context, req *Request) (Response, error) {
	start := time.Now()
	if req == nil {
		req = &Request{}
	}
	cmd := req.Cmd
	if cmd == "" {
		cmd = "open"
	}

	h, known := c.handlers[cmd]
	resp, err := c.dispatch(ctx, req, cmd, h, known)

	metrics.RecordCommand(cmd, known, err == nil, time.Since(start))
	if err != nil {
		logging.WithContext(ctx).Warn("command failed",
			zap.String("cmd", cmd), zap.Error(err))
		return nil, err
	}

	if c.opts.Debug {
		resp.envelope().Debug = &DebugInfo{
			Time:       time.Since(start).Seconds(),
			MimeDetect: "internal",
			ImgLib:     "imaging",
		}
	}
	return resp, nil
}

func (c *Connector) dispatch(ctx context.Context, req *Request, cmd string, h handler, known bool) (Response, error) {
	if err := c.validateRoot(); err != nil {
		return nil, err
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	logging.WithContext(ctx).Debug("dispatching command",
		zap.String("cmd", cmd), zap.String("target", req.Target))
	return h(newSession(ctx, c, req))
}

func (c *Connector) validateRoot() error {
	root := c.opts.Root
	if root == "" {
		return ErrInvalidRoot
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return ErrInvalidRoot
	}
	if !c.IsAllowed(root, ModeRead) {
		return fmt.Errorf(`%w to "root" path`, ErrAccessDenied)
	}
	return nil
}

// session is the state of one request. The clock is fixed at the start so
// every entry in a response is bucketed against the same day boundaries.
type session struct {
	ctx context.Context
	c   *Connector
	req *Request

	now       time.Time
	today     time.Time
	yesterday time.Time
}

func newSession(ctx context.Context, c *Connector, req *Request) *session {
	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return &session{
		ctx:       ctx,
		c:         c,
		req:       req,
		now:       now,
		today:     today,
		yesterday: today.AddDate(0, 0, -1),
	}
}
