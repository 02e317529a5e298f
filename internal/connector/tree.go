package connector

import (
	"os"
	"path/filepath"

	"github.com/fruitsalade/elfinder/internal/metrics"
)

// buildTree returns the directory tree below path, or nil when path is not
// a real directory. Symlinked directories are never expanded.
func (s *session) buildTree(path string) (*TreeNode, error) {
	count := 0
	node, err := s.treeNode(path, 0, &count)
	if err != nil {
		return nil, err
	}
	metrics.RecordTreeBuild(count)
	return node, nil
}

func (s *session) treeNode(path string, depth int, count *int) (*TreeNode, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	st, err := os.Lstat(path)
	if err != nil || !st.IsDir() {
		return nil, nil
	}

	c := s.c
	name := filepath.Base(path)
	if path == c.opts.Root && c.opts.RootAlias != "" {
		name = c.opts.RootAlias
	}

	*count++
	node := &TreeNode{
		Hash:  Hash(path),
		Name:  name,
		Read:  c.IsAllowed(path, ModeRead),
		Write: c.IsAllowed(path, ModeWrite),
		Dirs:  []*TreeNode{},
	}
	if !node.Read || depth >= c.opts.MaxDepth {
		return node, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return node, nil
	}
	for _, e := range entries {
		if !c.IsAccepted(e.Name()) || !e.IsDir() {
			continue
		}
		child, err := s.treeNode(filepath.Join(path, e.Name()), depth+1, count)
		if err != nil {
			return nil, err
		}
		if child != nil {
			node.Dirs = append(node.Dirs, child)
		}
	}
	return node, nil
}
