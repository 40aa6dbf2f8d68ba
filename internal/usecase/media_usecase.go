package usecase

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"pairchat/internal/domain/service"
	"pairchat/pkg/errors"
	"pairchat/pkg/logger"
)

const MaxImageSize = 5 << 20

type MediaUseCase struct {
	store service.MediaStore
}

func NewMediaUseCase(store service.MediaStore) *MediaUseCase {
	return &MediaUseCase{store: store}
}

type UploadResult struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// UploadImage sniffs the content, accepts images only, and returns the URL a
// message's image field should carry.
func (uc *MediaUseCase) UploadImage(ctx context.Context, userID string, file io.Reader) (*UploadResult, error) {
	if userID == "" {
		return nil, errors.Unauthorized("User identity is required", nil)
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxImageSize+1))
	if err != nil {
		return nil, errors.BadRequest("Failed to read upload", err)
	}
	if len(data) == 0 {
		return nil, errors.InvalidContent("Upload is empty")
	}
	if len(data) > MaxImageSize {
		return nil, errors.BadRequest("Image exceeds the 5 MB limit", nil)
	}

	mt := mimetype.Detect(data)
	contentType := mt.String()
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, errors.InvalidContent("Only images can be attached")
	}

	url, err := uc.store.UploadFile(ctx, bytes.NewReader(data), contentType, "messages/"+userID)
	if err != nil {
		logger.Error("UploadImage failed for %s: %v", userID, err)
		return nil, errors.Internal("Failed to store image", err)
	}

	return &UploadResult{URL: url, ContentType: contentType, Size: len(data)}, nil
}
