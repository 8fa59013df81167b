package service

import (
	"sort"
	"time"

	"murmur/internal/models"
	"murmur/internal/ranking"
)

// buildTree reconstructs the nested read-model from a flat comment set in one
// pass over the rows: index by id, link children to parents, then walk from
// the roots applying sibling order and the depth cutoff. Orphans whose parent
// is missing from the set are dropped rather than promoted.
func buildTree(comments []*models.Comment, itemID uint, maxDepth int, sortMode models.SortMode, now time.Time) *models.CommentTree {
	nodes := make(map[uint]*models.CommentNode, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &models.CommentNode{Comment: c}
	}

	var roots []*models.CommentNode
	children := make(map[uint][]*models.CommentNode, len(comments))
	for _, c := range comments {
		node := nodes[c.ID]
		if c.ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if _, ok := nodes[*c.ParentID]; !ok {
			continue
		}
		children[*c.ParentID] = append(children[*c.ParentID], node)
	}

	total := 0
	var attach func(node *models.CommentNode, depth int)
	attach = func(node *models.CommentNode, depth int) {
		node.Depth = depth
		total++

		kids := children[node.ID]
		if len(kids) == 0 {
			return
		}
		if depth >= maxDepth {
			// Collapsed: report the whole omitted subtree, not just the
			// direct children.
			node.More = &models.MoreReplies{
				ParentID: node.ID,
				Count:    subtreeSize(node.ID, children),
			}
			return
		}

		sortSiblings(kids, sortMode, now)
		node.Children = kids
		for _, kid := range kids {
			attach(kid, depth+1)
		}
	}

	sortSiblings(roots, sortMode, now)
	for _, root := range roots {
		attach(root, 0)
	}

	return &models.CommentTree{
		ContentItemID: itemID,
		MaxDepth:      maxDepth,
		Sort:          sortMode,
		Roots:         roots,
		Total:         total,
	}
}

func subtreeSize(id uint, children map[uint][]*models.CommentNode) int {
	count := 0
	for _, kid := range children[id] {
		count += 1 + subtreeSize(kid.ID, children)
	}
	return count
}

// sortSiblings orders one sibling group in place. Ties always fall back to
// (created_at, id) so identical inputs produce identical trees.
func sortSiblings(nodes []*models.CommentNode, mode models.SortMode, now time.Time) {
	switch mode {
	case models.SortMostLiked:
		sort.SliceStable(nodes, func(i, j int) bool {
			if nodes[i].LikeCount != nodes[j].LikeCount {
				return nodes[i].LikeCount > nodes[j].LikeCount
			}
			return newerFirst(nodes[i], nodes[j])
		})
	case models.SortHot:
		sort.SliceStable(nodes, func(i, j int) bool {
			si := ranking.HotScore(nodes[i].CreatedAt, nodes[i].LikeCount, nodes[i].ReplyCount, now)
			sj := ranking.HotScore(nodes[j].CreatedAt, nodes[j].LikeCount, nodes[j].ReplyCount, now)
			if si != sj {
				return si > sj
			}
			return newerFirst(nodes[i], nodes[j])
		})
	default:
		sort.SliceStable(nodes, func(i, j int) bool {
			return newerFirst(nodes[i], nodes[j])
		})
	}
}

func newerFirst(a, b *models.CommentNode) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
