package models

// CommentNode is a read-model tree node: a comment plus its children, with a
// depth counter relative to the thread root. Not persisted; reconstructed per
// query.
type CommentNode struct {
	*Comment
	Depth    int            `json:"depth"`
	Children []*CommentNode `json:"children,omitempty"`
	// More is set on nodes at the depth limit whose descendants were
	// collapsed instead of rendered.
	More *MoreReplies `json:"more,omitempty"`
}

// MoreReplies marks collapsed descendants beyond the requested depth.
type MoreReplies struct {
	ParentID uint `json:"parent_id"`
	Count    int  `json:"count"`
}

// CommentTree is the full tree read-model for one content item.
type CommentTree struct {
	ContentItemID uint           `json:"content_item_id"`
	MaxDepth      int            `json:"max_depth"`
	Sort          SortMode       `json:"sort"`
	Roots         []*CommentNode `json:"roots"`
	Total         int            `json:"total"`
}
