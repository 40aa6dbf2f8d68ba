package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/pkg/errors"
)

// 1x1 transparent PNG.
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type fakeMediaStore struct {
	contentType string
	folder      string
	size        int
	err         error
}

func (s *fakeMediaStore) UploadFile(ctx context.Context, file io.Reader, contentType, folder string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, _ := io.ReadAll(file)
	s.contentType, s.folder, s.size = contentType, folder, len(data)
	return fmt.Sprintf("https://cdn.test/%s/img", folder), nil
}

func (s *fakeMediaStore) Close() error { return nil }

func TestUploadImageAcceptsPNG(t *testing.T) {
	png, err := base64.StdEncoding.DecodeString(tinyPNG)
	require.NoError(t, err)
	store := &fakeMediaStore{}

	res, err := NewMediaUseCase(store).UploadImage(context.Background(), "alice", bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "https://cdn.test/messages/alice/img", res.URL)
	assert.Equal(t, len(png), store.size)
}

func TestUploadImageRejectsNonImages(t *testing.T) {
	uc := NewMediaUseCase(&fakeMediaStore{})

	_, err := uc.UploadImage(context.Background(), "alice", bytes.NewReader([]byte("%PDF-1.4 not an image")))
	assert.True(t, errors.Is(err, errors.CodeInvalidContent))

	_, err = uc.UploadImage(context.Background(), "alice", bytes.NewReader(nil))
	assert.True(t, errors.Is(err, errors.CodeInvalidContent))
}

func TestUploadImageRejectsOversize(t *testing.T) {
	png, _ := base64.StdEncoding.DecodeString(tinyPNG)
	big := append(png, make([]byte, MaxImageSize)...)

	_, err := NewMediaUseCase(&fakeMediaStore{}).UploadImage(context.Background(), "alice", bytes.NewReader(big))
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}

func TestUploadImageStoreFailure(t *testing.T) {
	png, _ := base64.StdEncoding.DecodeString(tinyPNG)
	uc := NewMediaUseCase(&fakeMediaStore{err: fmt.Errorf("bucket gone")})

	_, err := uc.UploadImage(context.Background(), "alice", bytes.NewReader(png))
	assert.True(t, errors.Is(err, errors.CodeInternal))
}
