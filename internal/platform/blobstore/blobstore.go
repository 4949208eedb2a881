// Package blobstore stores profile pictures. Profiles keep only the blob id;
// the bytes live on disk (MEDIA_DIR) or in memory for tests, and are served
// read-only at /media/:id.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Het-thummar/hospital-management/pkg/apperr"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("only PNG and JPEG images are allowed")
	ErrEmptyFile          = errors.New("file is empty")
)

// MaxFileSize is the largest accepted profile picture (5 MB).
const MaxFileSize = 5 * 1024 * 1024

// AllowedContentTypes is checked against the sniffed type, not the
// client-declared one.
var AllowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	OwnerID     string    `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type BlobStore interface {
	Put(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Get(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
}

// prepare reads and validates content, filling size, hash, type and id.
func prepare(meta BlobMetadata, content io.Reader) (BlobMetadata, []byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if len(data) == 0 {
		return meta, nil, ErrEmptyFile
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}

	ct := http.DetectContentType(data)
	if !AllowedContentTypes[ct] {
		return meta, nil, ErrInvalidContentType
	}

	meta.ID = uuid.NewString()
	meta.ContentType = ct
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = time.Now().UTC()
	return meta, data, nil
}

// -- In-memory --

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe BlobStore for tests and development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryBlobStore) Put(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryBlobStore) Get(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// -- Disk --

// DiskBlobStore writes each blob as <dir>/<id> with a <id>.json sidecar.
type DiskBlobStore struct {
	dir string
}

func NewDiskBlobStore(dir string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskBlobStore{dir: dir}, nil
}

func (s *DiskBlobStore) path(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrBlobNotFound
	}
	return filepath.Join(s.dir, id), nil
}

func (s *DiskBlobStore) Put(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	p, _ := s.path(meta.ID)

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(p, data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if err := os.WriteFile(p+".json", sidecar, 0o640); err != nil {
		_ = os.Remove(p)
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return &meta, nil
}

func (s *DiskBlobStore) Get(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(p + ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}

	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, &meta, nil
}

func (s *DiskBlobStore) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	} else if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	_ = os.Remove(p + ".json")
	return nil
}

// SaveUpload stores an optional multipart upload. A nil header returns an
// empty id. Validation failures are reported against field.
func SaveUpload(ctx context.Context, store BlobStore, field string, fh *multipart.FileHeader, ownerID string) (string, error) {
	if fh == nil {
		return "", nil
	}
	if fh.Size > MaxFileSize {
		return "", apperr.FieldValidation(field, "image must be 5 MB or smaller")
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	meta, err := store.Put(ctx, BlobMetadata{FileName: filepath.Base(fh.Filename), OwnerID: ownerID}, src)
	switch {
	case errors.Is(err, ErrFileTooLarge):
		return "", apperr.FieldValidation(field, "image must be 5 MB or smaller")
	case errors.Is(err, ErrInvalidContentType):
		return "", apperr.FieldValidation(field, ErrInvalidContentType.Error())
	case errors.Is(err, ErrEmptyFile):
		return "", apperr.FieldValidation(field, ErrEmptyFile.Error())
	case err != nil:
		return "", fmt.Errorf("store upload: %w", err)
	}
	return meta.ID, nil
}

// -- HTTP --

type BlobHandler struct {
	store BlobStore
}

func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

func (h *BlobHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/media/:id", h.handleDownload)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrBlobNotFound) {
		return apperr.NotFound("media")
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", "inline")
	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
