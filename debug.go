package bptree

import (
	"fmt"
	"io"
	"strings"

	"bptree/internal/base"
)

// PrintTree writes a page-by-page dump of the index to w, one line per
// page, indented by depth. The traversal latches pages top-down, so a
// dump taken next to concurrent writers is consistent per page but not
// across pages.
func (t *Tree[K, V]) PrintTree(w io.Writer) error {
	if t.closed.Load() {
		return ErrTreeClosed
	}
	root, err := t.RootPageID()
	if err != nil {
		return err
	}
	if root == InvalidPageID {
		t.log.Warn("printing an empty index")
		_, err = fmt.Fprintln(w, "empty")
		return err
	}
	return t.visitPages(root, 0, func(depth int, p *base.Page) error {
		indent := strings.Repeat("  ", depth)
		if p.IsLeaf() {
			leaf := asLeaf[K, V](p)
			_, err := fmt.Fprintf(w, "%sleaf page=%d size=%d next=%d keys=%v\n",
				indent, leaf.id(), leaf.size(), leaf.next(), leaf.keys())
			return err
		}
		node := asInternal[K](p)
		_, err := fmt.Fprintf(w, "%sinternal page=%d size=%d separators=%v\n",
			indent, node.id(), node.size(), node.separators())
		return err
	})
}

// DrawTree renders the index as a single-line picture. Leaves render as
// "(k1 k2)", internal pages wrap their children with the separator keys
// between them, as in "((1 2) <3> (3 4))". An empty index renders as
// "()".
func (t *Tree[K, V]) DrawTree() (string, error) {
	if t.closed.Load() {
		return "", ErrTreeClosed
	}
	root, err := t.RootPageID()
	if err != nil {
		return "", err
	}
	if root == InvalidPageID {
		t.log.Warn("drawing an empty index")
		return "()", nil
	}
	var sb strings.Builder
	if err := t.drawPage(&sb, root); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (t *Tree[K, V]) drawPage(sb *strings.Builder, id base.PageID) error {
	guard, err := t.pool.FetchPageRead(id)
	if err != nil {
		return err
	}
	defer guard.Drop()

	sb.WriteByte('(')
	if guard.Page().IsLeaf() {
		leaf := asLeaf[K, V](guard.Page())
		for i := 0; i < leaf.size(); i++ {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(sb, "%v", leaf.keyAt(i))
		}
	} else {
		node := asInternal[K](guard.Page())
		for i := 0; i < node.size(); i++ {
			if i > 0 {
				fmt.Fprintf(sb, " <%v> ", node.keyAt(i))
			}
			if err := t.drawPage(sb, node.childAt(i)); err != nil {
				return err
			}
		}
	}
	sb.WriteByte(')')
	return nil
}

// WriteGraph writes the index as a Graphviz digraph to w. Pages become
// record nodes, child pointers become edges, and the leaf chain is drawn
// with dashed edges. Render with dot -Tpng.
func (t *Tree[K, V]) WriteGraph(w io.Writer) error {
	if t.closed.Load() {
		return ErrTreeClosed
	}
	root, err := t.RootPageID()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "digraph btree {"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "  node [shape=record];"); err != nil {
		return err
	}
	if root == InvalidPageID {
		t.log.Warn("graphing an empty index")
	} else {
		err := t.visitPages(root, 0, func(depth int, p *base.Page) error {
			if p.IsLeaf() {
				leaf := asLeaf[K, V](p)
				id := leaf.id()
				if _, err := fmt.Fprintf(w, "  page%d [label=\"leaf %d|%s\"];\n",
					id, id, joinKeys(leaf.keys())); err != nil {
					return err
				}
				if next := leaf.next(); next != base.InvalidPageID {
					_, err := fmt.Fprintf(w, "  page%d -> page%d [style=dashed];\n", id, next)
					return err
				}
				return nil
			}
			node := asInternal[K](p)
			id := node.id()
			if _, err := fmt.Fprintf(w, "  page%d [label=\"internal %d|%s\"];\n",
				id, id, joinKeys(node.separators())); err != nil {
				return err
			}
			for i := 0; i < node.size(); i++ {
				if _, err := fmt.Fprintf(w, "  page%d -> page%d;\n", id, node.childAt(i)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w, "}")
	return err
}

// visitPages walks the subtree rooted at id depth-first, calling fn on
// each page under its read latch. Latches are held along the descent
// path, so the pool must hold at least height frames beyond the pins
// already out.
func (t *Tree[K, V]) visitPages(id base.PageID, depth int, fn func(depth int, p *base.Page) error) error {
	guard, err := t.pool.FetchPageRead(id)
	if err != nil {
		return err
	}
	defer guard.Drop()

	if err := fn(depth, guard.Page()); err != nil {
		return err
	}
	if guard.Page().IsLeaf() {
		return nil
	}
	node := asInternal[K](guard.Page())
	for i := 0; i < node.size(); i++ {
		if err := t.visitPages(node.childAt(i), depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

func joinKeys[K any](keys []K) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%v", k)
	}
	return strings.Join(parts, "|")
}
