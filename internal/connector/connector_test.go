package connector

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func runOpen(t *testing.T, c *Connector, req *Request) *OpenResponse {
	t.Helper()
	resp, err := c.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	open, ok := resp.(*OpenResponse)
	if !ok {
		t.Fatalf("response type = %T", resp)
	}
	return open
}

func cdcNames(entries []*EntryInfo) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return strings.Join(names, ",")
}

func TestOpenInit(t *testing.T) {
	root := newRoot(t)
	mkdirs(t, root, "Uploads")
	writeFile(t, root, "notes.txt", "hi")
	c := newConnector(t, root, nil)

	resp := runOpen(t, c, &Request{Cmd: "open", Init: true, Tree: true})

	if resp.API != APIVersion {
		t.Errorf("api = %q, want %q", resp.API, APIVersion)
	}
	cwd := resp.Cwd
	if cwd.Name != "Home" || cwd.Hash != Hash(root) || cwd.Rel != "Home" {
		t.Errorf("cwd = %+v", cwd)
	}
	if cwd.Mime != MimeDirectory || cwd.Size != 0 || !cwd.Read {
		t.Errorf("cwd fields = %+v", cwd)
	}
	if cwd.Rm {
		t.Error("root must not be removable")
	}
	if got := cdcNames(resp.Cdc); got != "Uploads,notes.txt" {
		t.Errorf("cdc = %s", got)
	}
	if resp.Tree == nil || len(resp.Tree.Dirs) != 1 || resp.Tree.Dirs[0].Name != "Uploads" {
		t.Errorf("tree = %+v", resp.Tree)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"api":"2.0"`, `"cwd":`, `"cdc":[`, `"tree":`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("json missing %s: %s", want, data)
		}
	}
	if strings.Contains(string(data), `"debug"`) {
		t.Errorf("debug present without Debug option: %s", data)
	}
}

func TestOpenDefaultsWithoutInit(t *testing.T) {
	root := newRoot(t)
	c := newConnector(t, root, nil)

	resp := runOpen(t, c, &Request{})
	if resp.API != "" || resp.Tree != nil {
		t.Errorf("api/tree set without init/tree: %q %+v", resp.API, resp.Tree)
	}
	data, _ := json.Marshal(resp)
	if strings.Contains(string(data), `"api"`) || strings.Contains(string(data), `"tree"`) {
		t.Errorf("json = %s", data)
	}
	if !strings.Contains(string(data), `"cdc":[]`) {
		t.Errorf("empty listing must encode as array: %s", data)
	}
}

func TestOpenListingOrder(t *testing.T) {
	root := newRoot(t)
	mkdirs(t, root, "zeta", "Alpha", "beta")
	writeFile(t, root, "a.txt", "x")
	writeFile(t, root, "B.txt", "x")
	writeFile(t, root, ".hidden", "x")
	c := newConnector(t, root, nil)

	resp := runOpen(t, c, &Request{})
	if got := cdcNames(resp.Cdc); got != "Alpha,beta,zeta,B.txt,a.txt" {
		t.Errorf("cdc = %s", got)
	}
}

func TestOpenTarget(t *testing.T) {
	root := newRoot(t)
	mkdirs(t, root, "docs/sub")
	writeFile(t, root, "docs/readme.txt", "x")
	c := newConnector(t, root, nil)
	docs := filepath.Join(root, "docs")

	resp := runOpen(t, c, &Request{Target: Hash(docs), Tree: true})
	if resp.Cwd.Name != "docs" || resp.Cwd.Rel != "Home/docs" || resp.Cwd.Hash != Hash(docs) {
		t.Errorf("cwd = %+v", resp.Cwd)
	}
	if !resp.Cwd.Rm {
		t.Error("non-root directory should be removable")
	}
	if got := cdcNames(resp.Cdc); got != "sub,readme.txt" {
		t.Errorf("cdc = %s", got)
	}
	if resp.Tree == nil || resp.Tree.Hash != Hash(root) {
		t.Error("tree must always start at root")
	}
}

func TestOpenTargetNotFound(t *testing.T) {
	root := newRoot(t)
	c := newConnector(t, root, nil)

	_, err := c.Run(context.Background(), &Request{Target: Hash(filepath.Join(root, "gone"))})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	_, err = c.Run(context.Background(), &Request{Target: "not-a-hash"})
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("expected ErrBadRequest, got %v", err)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	root := newRoot(t)
	mkdirs(t, root, "one/two", "three")
	symlink(t, filepath.Join(root, "one"), filepath.Join(root, "alias"))
	c := newConnector(t, root, nil)

	resp := runOpen(t, c, &Request{})
	dirs := 0
	for _, e := range resp.Cdc {
		if e.Mime != MimeDirectory {
			continue
		}
		dirs++
		sub := runOpen(t, c, &Request{Target: e.Hash})
		if sub.Cwd.Hash != e.Hash || sub.Cwd.Name != e.Name {
			t.Errorf("open(%s) cwd = %+v", e.Name, sub.Cwd)
		}
	}
	if dirs != 3 {
		t.Errorf("listed %d directories, want 3", dirs)
	}

	// The linked directory lists the target's content
	alias := runOpen(t, c, &Request{Target: Hash(filepath.Join(root, "alias"))})
	if got := cdcNames(alias.Cdc); got != "two" {
		t.Errorf("alias cdc = %s", got)
	}
}

func TestOpenThroughSymlinkedRoot(t *testing.T) {
	realRoot := newRoot(t)
	writeFile(t, realRoot, "sub/b.txt", "payload")
	symlink(t, filepath.Join("sub", "b.txt"), filepath.Join(realRoot, "link.txt"))
	via := filepath.Join(newRoot(t), "via")
	symlink(t, realRoot, via)
	c := newConnector(t, via, nil)

	if c.Options().Root != realRoot {
		t.Errorf("root = %q, want resolved %q", c.Options().Root, realRoot)
	}

	resp := runOpen(t, c, &Request{Init: true, Tree: true})
	if resp.Tree == nil || resp.Tree.Name != "Home" {
		t.Fatalf("tree = %+v", resp.Tree)
	}
	var link *EntryInfo
	for _, e := range resp.Cdc {
		if e.Name == "link.txt" {
			link = e
		}
	}
	if link == nil {
		t.Fatalf("cdc = %s", cdcNames(resp.Cdc))
	}
	if link.LinkTo != "Home/sub/b.txt" {
		t.Errorf("linkTo = %q", link.LinkTo)
	}
	if link.URL != "/sub/b.txt" {
		t.Errorf("url = %q", link.URL)
	}
	got, err := c.Resolve(context.Background(), link.Parent, "")
	if err != nil || got != filepath.Join(realRoot, "sub") {
		t.Errorf("Resolve(parent) = %q, %v", got, err)
	}
}

func TestOpenDateBuckets(t *testing.T) {
	root := newRoot(t)
	now := time.Date(2024, time.June, 10, 15, 0, 0, 0, time.Local)
	files := map[string]time.Time{
		"today.txt":     time.Date(2024, time.June, 10, 8, 15, 0, 0, time.Local),
		"yesterday.txt": time.Date(2024, time.June, 9, 22, 40, 0, 0, time.Local),
		"older.txt":     time.Date(2024, time.May, 2, 7, 3, 0, 0, time.Local),
	}
	for name, mtime := range files {
		p := writeFile(t, root, name, "x")
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	c := newConnector(t, root, nil)
	c.now = fixedClock(now)

	resp := runOpen(t, c, &Request{})
	want := map[string]string{
		"today.txt":     "Today 08:15",
		"yesterday.txt": "Yesterday 22:40",
		"older.txt":     "02 May 2024 07:03",
	}
	for _, e := range resp.Cdc {
		if e.Date != want[e.Name] {
			t.Errorf("%s date = %q, want %q", e.Name, e.Date, want[e.Name])
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	root := newRoot(t)
	c := newConnector(t, root, nil)

	for _, cmd := range []string{"_content", "rm", "mkdir"} {
		_, err := c.Run(context.Background(), &Request{Cmd: cmd})
		if !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("Run(%q): expected ErrUnknownCommand, got %v", cmd, err)
		}
		if err != nil && !strings.Contains(err.Error(), cmd) {
			t.Errorf("error %q does not name the command", err)
		}
	}
}

func TestRunDisabledCommand(t *testing.T) {
	root := newRoot(t)
	c := newConnector(t, root, func(o *Options) { o.Disabled = []string{"tmb"} })

	if got := strings.Join(c.Commands(), ","); got != "open" {
		t.Errorf("commands = %s", got)
	}
	if _, err := c.Run(context.Background(), &Request{Cmd: "tmb"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestRunInvalidRoot(t *testing.T) {
	base := newRoot(t)
	file := writeFile(t, base, "plain.txt", "x")

	for name, root := range map[string]string{
		"empty":   "",
		"missing": filepath.Join(base, "missing"),
		"file":    file,
	} {
		opts := DefaultOptions()
		opts.Root = root
		c, err := New(opts)
		if err != nil {
			t.Fatalf("%s: New: %v", name, err)
		}
		if _, err := c.Run(context.Background(), &Request{}); !errors.Is(err, ErrInvalidRoot) {
			t.Errorf("%s: expected ErrInvalidRoot, got %v", name, err)
		}
		// Root validation precedes command lookup
		if _, err := c.Run(context.Background(), &Request{Cmd: "bogus"}); !errors.Is(err, ErrInvalidRoot) {
			t.Errorf("%s: expected ErrInvalidRoot for unknown command, got %v", name, err)
		}
	}
}

func TestRunRootReadDenied(t *testing.T) {
	root := newRoot(t)
	no := false
	c := newConnector(t, root, func(o *Options) {
		o.Perms = []PermRule{{Pattern: `^/$`, Read: &no}}
	})

	_, err := c.Run(context.Background(), &Request{})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), `"root"`) {
		t.Errorf("error = %q", err)
	}
}

func TestRunDebug(t *testing.T) {
	root := newRoot(t)
	c := newConnector(t, root, func(o *Options) { o.Debug = true })

	resp := runOpen(t, c, &Request{})
	if resp.Debug == nil || resp.Debug.MimeDetect != "internal" || resp.Debug.ImgLib != "imaging" {
		t.Fatalf("debug = %+v", resp.Debug)
	}
	data, _ := json.Marshal(resp)
	if !strings.Contains(string(data), `"debug":{"time":`) {
		t.Errorf("json = %s", data)
	}
}

func TestRunCanceled(t *testing.T) {
	root := newRoot(t)
	mkdirs(t, root, "a/b")
	writeFile(t, root, "a/b/file.txt", "x")
	c := newConnector(t, root, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx, &Request{Tree: true}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewCreatesThumbnailDir(t *testing.T) {
	root := newRoot(t)
	c := newConnector(t, root, nil)

	want := filepath.Join(root, ".tmb")
	if c.ThumbnailDir() != want {
		t.Errorf("ThumbnailDir = %q, want %q", c.ThumbnailDir(), want)
	}
	st, err := os.Stat(want)
	if err != nil || !st.IsDir() {
		t.Errorf("thumbnail dir not created: %v", err)
	}

	off := newConnector(t, newRoot(t), func(o *Options) { o.TmbDir = "" })
	if off.ThumbnailDir() != "" {
		t.Error("thumbnails should be disabled")
	}
	if got := strings.Join(off.Commands(), ","); got != "open" {
		t.Errorf("commands = %s", got)
	}
}

func TestTmbBatches(t *testing.T) {
	root := newRoot(t)
	a := writePNG(t, root, "a.png", 60, 30)
	b := writePNG(t, root, "b.png", 30, 60)
	writeFile(t, root, "notes.txt", "x")
	c := newConnector(t, root, func(o *Options) {
		o.TmbAtOnce = 1
		o.URL = "/files"
	})

	run := func() *TmbResponse {
		t.Helper()
		resp, err := c.Run(context.Background(), &Request{Cmd: "tmb", Current: Hash(root)})
		if err != nil {
			t.Fatalf("tmb: %v", err)
		}
		return resp.(*TmbResponse)
	}

	first := run()
	if first.Current != Hash(root) {
		t.Errorf("current = %q", first.Current)
	}
	if len(first.Images) != 1 || !first.Tmb {
		t.Fatalf("first batch = %+v", first)
	}
	if want := "/files/.tmb/" + Hash(a) + ".png"; first.Images[Hash(a)] != want {
		t.Errorf("images = %v, want %s for a.png", first.Images, want)
	}

	second := run()
	if len(second.Images) != 1 || second.Tmb {
		t.Fatalf("second batch = %+v", second)
	}
	if _, ok := second.Images[Hash(b)]; !ok {
		t.Errorf("images = %v, want b.png", second.Images)
	}

	third := run()
	if len(third.Images) != 0 || third.Tmb {
		t.Errorf("third batch = %+v", third)
	}

	// Listings now carry the thumbnail URLs
	open := runOpen(t, c, &Request{})
	for _, e := range open.Cdc {
		if strings.HasSuffix(e.Name, ".png") && e.Tmb == "" {
			t.Errorf("%s has no tmb after rendering", e.Name)
		}
	}
}

func TestTmbSymlinkedImage(t *testing.T) {
	root := newRoot(t)
	target := writePNG(t, root, "pics/cat.png", 20, 20)
	link := filepath.Join(root, "cat-link.png")
	symlink(t, target, link)
	c := newConnector(t, root, nil)

	resp, err := c.Run(context.Background(), &Request{Cmd: "tmb"})
	if err != nil {
		t.Fatal(err)
	}
	tmb := resp.(*TmbResponse)
	if _, ok := tmb.Images[Hash(link)]; !ok || len(tmb.Images) != 1 {
		t.Fatalf("images = %v, want the link", tmb.Images)
	}

	open := runOpen(t, c, &Request{})
	for _, e := range open.Cdc {
		if e.Name == "cat-link.png" && e.Tmb != "/.tmb/"+Hash(link)+".png" {
			t.Errorf("link tmb = %q", e.Tmb)
		}
	}
}

func TestTmbSkipsBrokenImages(t *testing.T) {
	root := newRoot(t)
	writeFile(t, root, "bad.png", "not an image")
	good := writePNG(t, root, "good.png", 8, 8)
	c := newConnector(t, root, func(o *Options) { o.TmbAtOnce = 1 })

	resp, err := c.Run(context.Background(), &Request{Cmd: "tmb"})
	if err != nil {
		t.Fatal(err)
	}
	tmb := resp.(*TmbResponse)
	if _, ok := tmb.Images[Hash(good)]; !ok || len(tmb.Images) != 1 {
		t.Errorf("images = %v", tmb.Images)
	}
	if tmb.Tmb {
		t.Error("nothing renderable is left")
	}
}

func TestTmbInsideThumbnailDir(t *testing.T) {
	root := newRoot(t)
	c := newConnector(t, root, func(o *Options) { o.DotFiles = true })
	writePNG(t, c.ThumbnailDir(), "x.png", 4, 4)

	resp, err := c.Run(context.Background(), &Request{Cmd: "tmb", Current: Hash(c.ThumbnailDir())})
	if err != nil {
		t.Fatal(err)
	}
	if tmb := resp.(*TmbResponse); len(tmb.Images) != 0 || tmb.Tmb {
		t.Errorf("thumbnail dir must not be thumbnailed: %+v", tmb)
	}
}

func TestParseRequest(t *testing.T) {
	v := url.Values{}
	v.Set("cmd", " open ")
	v.Set("target", "abc")
	v.Set("current", "def")
	v.Set("init", "true")
	v.Set("tree", "1")

	req := ParseRequest(v)
	if req.Cmd != "open" || req.Target != "abc" || req.Current != "def" || !req.Init || !req.Tree {
		t.Errorf("ParseRequest = %+v", req)
	}

	for in, want := range map[string]bool{"yes": true, "on": true, "TRUE": true, "0": false, "": false, "nope": false} {
		if got := parseFlag(in); got != want {
			t.Errorf("parseFlag(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOptionsWith(t *testing.T) {
	root := "/srv/files"
	alias := "Files"
	dot := true
	depth := 3
	mode := uint32(0600)

	o := DefaultOptions().With(Overrides{
		Root:      &root,
		RootAlias: &alias,
		DotFiles:  &dot,
		MaxDepth:  &depth,
		FileMode:  &mode,
		Disabled:  []string{"tmb"},
	})
	if o.Root != root || o.RootAlias != alias || !o.DotFiles || o.MaxDepth != 3 || o.FileMode != 0600 {
		t.Errorf("With = %+v", o)
	}
	if len(o.Disabled) != 1 || o.Disabled[0] != "tmb" {
		t.Errorf("disabled = %v", o.Disabled)
	}
	if !o.DirSize || o.TmbDir != ".tmb" || o.TmbSize != 48 {
		t.Errorf("unset fields changed: %+v", o)
	}
}
