package lineage

import (
	"context"
	"errors"
	"fmt"
)

// Loader defines the interface for loading lineage nodes from storage.
// Keeping it separate from the storage driver avoids a circular import
// between pkg/lineage and pkg/storage.
type Loader interface {
	// Get retrieves a node by id.
	Get(ctx context.Context, id string) (*Node, error)

	// GetByParent retrieves all nodes that list parentID among their
	// Parents.
	GetByParent(ctx context.Context, parentID string) ([]*Node, error)
}

// Dag is an in-memory view of a derivation subgraph, loaded on demand
// from a Loader and indexed for O(1) lookup.
type Dag struct {
	// Roots are the nodes in this view with no parents.
	Roots []*DagNode

	index map[string]*DagNode
}

// DagNode wraps a Node with structural links for traversal.
type DagNode struct {
	*Node

	Parents  []*DagNode
	Children []*DagNode
}

// NewDag returns an empty Dag.
func NewDag() *Dag {
	return &Dag{index: make(map[string]*DagNode)}
}

// LoadDag loads the full connected subgraph containing id: every
// ancestor reachable by walking Parents, and every descendant
// reachable by walking GetByParent.
func LoadDag(ctx context.Context, loader Loader, id string) (*Dag, error) {
	dag := NewDag()

	if err := dag.loadAncestors(ctx, loader, id); err != nil {
		return nil, fmt.Errorf("loading ancestors of %s: %w", id, err)
	}

	matched := dag.Get(id)
	if matched == nil {
		return nil, fmt.Errorf("node %s not found", id)
	}

	if err := dag.loadDescendants(ctx, loader, matched); err != nil {
		return nil, fmt.Errorf("loading descendants of %s: %w", id, err)
	}

	return dag, nil
}

// Get returns the DagNode with the given id, or nil if not loaded.
func (d *Dag) Get(id string) *DagNode {
	return d.index[id]
}

// Size returns the number of nodes currently loaded into the view.
func (d *Dag) Size() int {
	return len(d.index)
}

// Leaves returns nodes with no children.
func (d *Dag) Leaves() []*DagNode {
	leaves := []*DagNode{}
	for _, n := range d.index {
		if len(n.Children) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Walk performs a depth-first traversal starting from every root,
// calling fn for each node reachable exactly once. Traversal stops
// early if fn returns false or an error.
func (d *Dag) Walk(fn func(*DagNode) (bool, error)) error {
	visited := make(map[string]bool, len(d.index))

	for _, root := range d.Roots {
		ok, err := d.walkNode(root, visited, fn)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return nil
}

func (d *Dag) walkNode(node *DagNode, visited map[string]bool, fn func(*DagNode) (bool, error)) (bool, error) {
	if visited[node.ID] {
		return true, nil
	}
	visited[node.ID] = true

	ok, err := fn(node)
	if !ok || err != nil {
		return false, err
	}

	for _, child := range node.Children {
		ok, err := d.walkNode(child, visited, fn)
		if !ok || err != nil {
			return false, err
		}
	}

	return true, nil
}

// Ancestors returns every node reachable by walking Parents from id,
// breadth-first, without duplicates. Returns nil if id is not loaded.
func (d *Dag) Ancestors(id string) []*DagNode {
	node := d.Get(id)
	if node == nil {
		return nil
	}

	visited := map[string]bool{}
	var out []*DagNode
	queue := append([]*DagNode{}, node.Parents...)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.ID] {
			continue
		}
		visited[cur.ID] = true
		out = append(out, cur)
		queue = append(queue, cur.Parents...)
	}

	return out
}

// Descendants returns every node reachable from id via Children.
func (d *Dag) Descendants(id string) []*DagNode {
	node := d.Get(id)
	if node == nil {
		return nil
	}

	var out []*DagNode
	visited := map[string]bool{node.ID: true}
	queue := append([]*DagNode{}, node.Children...)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.ID] {
			continue
		}
		visited[cur.ID] = true
		out = append(out, cur)
		queue = append(queue, cur.Children...)
	}

	return out
}

// IsMerge reports whether id has more than one parent recorded.
func (d *Dag) IsMerge(id string) bool {
	node := d.Get(id)
	return node != nil && len(node.Parents) > 1
}

// addNode links node into the graph. Parents already present in the
// index are wired immediately; parents not yet present are left for a
// later addNode call to wire (loadAncestors guarantees parents load
// before children are linked to them for the ancestor walk, and
// loadDescendants only ever adds children of already-present nodes).
func (d *Dag) addNode(node *Node) (*DagNode, error) {
	if node == nil {
		return nil, errors.New("cannot add nil node to dag")
	}

	if existing, ok := d.index[node.ID]; ok {
		return existing, nil
	}

	dagNode := &DagNode{
		Node:     node,
		Parents:  make([]*DagNode, 0, len(node.Parents)),
		Children: make([]*DagNode, 0),
	}

	for _, parentID := range node.Parents {
		if parent, ok := d.index[parentID]; ok {
			dagNode.Parents = append(dagNode.Parents, parent)
			parent.Children = append(parent.Children, dagNode)
		}
	}

	if node.IsRoot() {
		d.Roots = append(d.Roots, dagNode)
	}

	d.index[node.ID] = dagNode
	return dagNode, nil
}

// loadAncestors recursively loads id and everything reachable via its
// Parents chain, nearest-ancestor-first so each parent is indexed
// before the child that references it.
func (d *Dag) loadAncestors(ctx context.Context, loader Loader, id string) error {
	if d.Get(id) != nil {
		return nil
	}

	node, err := loader.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading node %s: %w", id, err)
	}

	for _, parentID := range node.Parents {
		if err := d.loadAncestors(ctx, loader, parentID); err != nil {
			return err
		}
	}

	_, err = d.addNode(node)
	return err
}

// loadDescendants recursively loads every node that (transitively)
// lists node among its parents.
func (d *Dag) loadDescendants(ctx context.Context, loader Loader, node *DagNode) error {
	children, err := loader.GetByParent(ctx, node.ID)
	if err != nil {
		return fmt.Errorf("getting children of %s: %w", node.ID, err)
	}

	for _, child := range children {
		if d.Get(child.ID) != nil {
			continue
		}

		childNode, err := d.addNode(child)
		if err != nil {
			return fmt.Errorf("adding child node %s: %w", child.ID, err)
		}

		if err := d.loadDescendants(ctx, loader, childNode); err != nil {
			return err
		}
	}

	return nil
}
