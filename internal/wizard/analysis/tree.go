// SPDX-License-Identifier: Apache-2.0

package analysis

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/kusari-oss/deploymate/internal/core/clock"
)

// Node types
const (
	NodeDir  = "dir"
	NodeFile = "file"
)

var extRe = regexp.MustCompile(`\.[^./\\]+$`)

// Node is one entry of the repository file tree
type Node struct {
	Name     string  `json:"name" yaml:"name"`
	Type     string  `json:"type" yaml:"type"`
	Path     string  `json:"path" yaml:"path"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// BuildTree turns a flat path list into a tree. A segment is a file only when
// it is the last one and has an extension. Directories sort first, then names.
func BuildTree(paths []string) *Node {
	root := &Node{Type: NodeDir}
	index := map[string]*Node{"": root}

	for _, p := range paths {
		if p == "" {
			continue
		}
		parts := strings.Split(p, "/")
		parent := root
		acc := ""
		for i, part := range parts {
			if acc == "" {
				acc = part
			} else {
				acc = acc + "/" + part
			}
			node, ok := index[acc]
			if !ok {
				typ := NodeDir
				if i == len(parts)-1 && extRe.MatchString(part) {
					typ = NodeFile
				}
				node = &Node{Name: part, Type: typ, Path: acc}
				index[acc] = node
				parent.Children = append(parent.Children, node)
			}
			parent = node
		}
	}

	sortTree(root)
	return root
}

func sortTree(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == NodeDir
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		sortTree(c)
	}
}

// Walk visits every node below n depth-first with its depth
func (n *Node) Walk(fn func(node *Node, depth int)) {
	var walk func(*Node, int)
	walk = func(node *Node, depth int) {
		for _, c := range node.Children {
			fn(c, depth)
			walk(c, depth+1)
		}
	}
	walk(n, 0)
}

// Filter hides paths matching gitignore-style patterns
type Filter struct {
	matcher *ignore.GitIgnore
}

// NewFilter compiles patterns; no patterns means nothing is hidden
func NewFilter(patterns []string) *Filter {
	if len(patterns) == 0 {
		return &Filter{}
	}
	return &Filter{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// Apply returns the paths that are not ignored, in their original order
func (f *Filter) Apply(paths []string) []string {
	if f == nil || f.matcher == nil {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !f.matcher.MatchesPath(p) {
			out = append(out, p)
		}
	}
	return out
}

// Revealer shows a file list one entry per tick
type Revealer struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

// NewRevealer ticks every interval on c
func NewRevealer(c clock.Clock, interval time.Duration) *Revealer {
	if c == nil {
		c = clock.Real{}
	}
	return &Revealer{clock: c, interval: interval}
}

// Start calls onStep with a growing prefix of files, then done. With a zero
// interval everything is revealed at once.
func (r *Revealer) Start(files []string, onStep func(visible []string), done func()) {
	if r.interval <= 0 || len(files) == 0 {
		onStep(files)
		if done != nil {
			done()
		}
		return
	}

	var tick func(i int)
	tick = func(i int) {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		onStep(files[:i])
		if i >= len(files) {
			if done != nil {
				done()
			}
			return
		}

		r.mu.Lock()
		if !r.stopped {
			r.timer = r.clock.AfterFunc(r.interval, func() { tick(i + 1) })
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.timer = r.clock.AfterFunc(r.interval, func() { tick(1) })
	r.mu.Unlock()
}

// Stop cancels any pending tick
func (r *Revealer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
}
