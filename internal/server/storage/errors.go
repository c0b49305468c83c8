package storage

import "errors"

// Common storage errors
var (
	// ErrNodeNotFound indicates that node was not found in storage
	ErrNodeNotFound = errors.New("node not found")

	// ErrNodeExists indicates that node with this id was created by someone else
	ErrNodeExists = errors.New("node already exists")

	// ErrCollaborationNotFound indicates that the user has no collaboration on the root
	ErrCollaborationNotFound = errors.New("collaboration not found")

	// ErrForbidden indicates that the user has no suitable collaboration on the root
	ErrForbidden = errors.New("no access to root")

	// ErrRootMismatch indicates that the entity belongs to a different root
	ErrRootMismatch = errors.New("entity belongs to a different root")

	// ErrFragmentNotFound indicates that no update fragment matched the query
	ErrFragmentNotFound = errors.New("update fragment not found")

	// ErrMergeConflict indicates that fragments changed while a merge was prepared
	ErrMergeConflict = errors.New("update fragments changed during merge")

	// ErrUnknownStream indicates an unsupported stream type
	ErrUnknownStream = errors.New("unknown stream")

	// ErrUnknownUpdateKind indicates an unsupported update log
	ErrUnknownUpdateKind = errors.New("unknown update kind")
)
