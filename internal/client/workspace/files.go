package workspace

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

// AttachFile registers file metadata under a node. Unlike node edits this
// needs the server: the file record is created there and copied into the
// replica from the response.
func (s *Service) AttachFile(ctx context.Context, rootID, parentID, name, mimeType string, size int64) (*models.File, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: file name is empty", ErrInvalidNode)
	}
	if _, err := s.store.GetNode(ctx, rootID, parentID); err != nil {
		return nil, fmt.Errorf("parent %s: %w", parentID, err)
	}

	file, err := s.remote.CreateFile(ctx, api.CreateFileRequest{
		ID:       uuid.NewString(),
		RootID:   rootID,
		ParentID: parentID,
		Name:     name,
		MimeType: mimeType,
		Size:     size,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.store.ApplyFile(ctx, file); err != nil {
		return nil, err
	}

	s.logger.Debug("File attached", "file_id", file.ID, "root_id", rootID, "parent_id", parentID)
	return file, nil
}
