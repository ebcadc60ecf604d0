package accounts

import (
	"context"
	"sort"
)

// Node is one account in the rendered forest. RolledBalance aggregates the
// subtree for non-postable header accounts at read time.
type Node struct {
	Account
	RolledBalance float64
	Children      []*Node
}

// Tree builds the account forest for a company in O(n) by grouping children
// under a parent-id index. An account whose parent cannot be resolved is
// promoted to a root; that is a recoverable consistency gap, not an error.
func (s *Service) Tree(ctx context.Context, companyID int64, accountType AccountType) ([]*Node, error) {
	flat, err := s.repo.List(ctx, companyID, ListFilter{Type: accountType})
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*Node, len(flat))
	for i := range flat {
		byID[flat[i].ID] = &Node{Account: flat[i]}
	}
	var roots []*Node
	for _, node := range byID {
		if node.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := byID[*node.ParentID]
		if !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	for _, root := range roots {
		rollUp(root)
	}
	sortForest(roots)
	return roots, nil
}

func rollUp(n *Node) float64 {
	total := n.CurrentBalance
	for _, child := range n.Children {
		total += rollUp(child)
	}
	n.RolledBalance = total
	return total
}

func sortForest(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Code < nodes[j].Code })
	for _, n := range nodes {
		sortForest(n.Children)
	}
}
