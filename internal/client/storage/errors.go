package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrNodeNotFound indicates that the node is not in the local replica
	ErrNodeNotFound = errors.New("node not found")

	// ErrCollaborationNotFound indicates that the collaboration is not in the local replica
	ErrCollaborationNotFound = errors.New("collaboration not found")

	// ErrInteractionNotFound indicates that the viewer has no interaction with the node
	ErrInteractionNotFound = errors.New("interaction not found")

	// ErrDocumentNotFound indicates that no document state exists
	ErrDocumentNotFound = errors.New("document not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
