// Package models defines server-side data models persisted in the database.
package models

import "time"

// NodeType distinguishes files from folders. Immutable after creation.
type NodeType string

const (
	NodeTypeFile   NodeType = "file"
	NodeTypeFolder NodeType = "folder"
)

// Node is a single entry in the namespace tree: a file or a folder.
// The logical path of a node is never stored; it is recomputed from the
// parent chain so that renames and moves elsewhere in the tree do not
// require cascading updates.
type Node struct {
	// ID is the opaque unique identifier of the node.
	ID string
	// Name is the display name. Non-empty, never contains "/", unique among
	// non-deleted siblings of the same type under the same parent and owner.
	Name string
	// Type is file or folder.
	Type NodeType
	// Owner is the identity that controls the node. Every query and
	// mutation is scoped by it.
	Owner string
	// ParentID references the containing folder, nil for root-level nodes.
	ParentID *string

	// StorageKey addresses the file bytes in object storage. Present only
	// for file nodes; derived from owner and logical path, never
	// user-supplied.
	StorageKey string
	// Size is the byte size of a file node, zero for folders.
	Size int64
	// MimeType is the content type of a file node, empty for folders.
	MimeType string

	// IsDeleted marks the node as soft-deleted (hidden, not destroyed).
	IsDeleted bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFile reports whether the node is a file.
func (n *Node) IsFile() bool { return n.Type == NodeTypeFile }

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool { return n.Type == NodeTypeFolder }
