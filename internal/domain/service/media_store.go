package service

import (
	"context"
	"io"
)

// MediaStore hosts uploaded message images and returns their public URL.
type MediaStore interface {
	UploadFile(ctx context.Context, file io.Reader, contentType, folder string) (string, error)
	Close() error
}
