// Package file stores user uploads: metadata in the relational store,
// bytes in a pluggable blob backend. Every read and mutation goes
// through the ownership rules in the auth package.
package file

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"stackpad.org/internal/auth"
	"stackpad.org/internal/ids"
)

var (
	ErrNotFound        = errors.New("file: not found")
	ErrInvalidInput    = errors.New("file: invalid input")
	ErrTooLarge        = errors.New("file: too large")
	ErrUnsupportedType = errors.New("file: unsupported type")
)

// File is the stored metadata for one upload. The bytes live in the
// blob store under StorageKey.
type File struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	StorageKey  string    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ref adapts a file to the ownership evaluator.
func (f *File) Ref() *auth.ResourceRef {
	if f == nil {
		return nil
	}
	return &auth.ResourceRef{ID: f.ID, OwnerID: f.OwnerID}
}

// Store persists file metadata. An empty ownerID on ListFiles means no
// owner filter.
type Store interface {
	CreateFile(ctx context.Context, f *File) error
	FindFile(ctx context.Context, id string) (*File, error)
	ListFiles(ctx context.Context, ownerID string, limit, offset int) ([]*File, int, error)
	DeleteFile(ctx context.Context, id string) error
}

// BlobStore holds the raw bytes. Implementations must tolerate Delete
// on a missing key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// sniffLen is how many leading bytes feed content-type detection.
const sniffLen = 3072

// Service enforces upload policy and ownership over a metadata store
// and a blob backend.
type Service struct {
	store    Store
	blobs    BlobStore
	maxSize  int64
	allowExt map[string]bool
	allowMIM map[string]bool
	now      func() time.Time
}

type Option func(*Service)

// WithClock overrides the timestamp source. Tests use it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a file service. Extensions are matched without the
// leading dot and case-insensitively; MIME types exactly.
func NewService(store Store, blobs BlobStore, maxSize int64, allowedExts, allowedMIMEs []string, opts ...Option) *Service {
	s := &Service{
		store:    store,
		blobs:    blobs,
		maxSize:  maxSize,
		allowExt: make(map[string]bool, len(allowedExts)),
		allowMIM: make(map[string]bool, len(allowedMIMEs)),
		now:      time.Now,
	}
	for _, e := range allowedExts {
		s.allowExt[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))] = true
	}
	for _, m := range allowedMIMEs {
		s.allowMIM[strings.ToLower(strings.TrimSpace(m))] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadInput carries one incoming upload. Size is advisory; the
// service enforces the cap on the actual stream.
type UploadInput struct {
	Filename string
	Body     io.Reader
}

// Upload validates the upload against the extension and MIME
// allowlists, streams it to the blob store while hashing, and records
// the metadata. The stored filename is sanitized.
func (s *Service) Upload(ctx context.Context, p *auth.Principal, in UploadInput) (*File, error) {
	if err := auth.AuthorizeCreate(p).Err(); err != nil {
		return nil, err
	}
	name := SanitizeFilename(in.Filename)
	if name == "" {
		return nil, fmt.Errorf("%w: filename required", ErrInvalidInput)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if len(s.allowExt) > 0 && !s.allowExt[ext] {
		return nil, fmt.Errorf("%w: extension %q not allowed", ErrUnsupportedType, ext)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("file: read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	detected := mimetype.Detect(head)
	contentType := strings.ToLower(detected.String())
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if len(s.allowMIM) > 0 && !s.allowMIM[contentType] {
		return nil, fmt.Errorf("%w: content type %q not allowed", ErrUnsupportedType, contentType)
	}

	// Re-join the sniffed head with the rest of the stream, capped one
	// byte past the limit so overflow is detectable.
	body := io.MultiReader(bytes.NewReader(head), in.Body)
	if s.maxSize > 0 {
		body = io.LimitReader(body, s.maxSize+1)
	}
	hash := sha256.New()
	key := path.Join(p.ID(), ids.New())
	size, err := s.putCounted(ctx, key, io.TeeReader(body, hash), contentType)
	if err != nil {
		return nil, err
	}
	if s.maxSize > 0 && size > s.maxSize {
		_ = s.blobs.Delete(ctx, key)
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.maxSize)
	}

	now := s.now().UTC()
	f := &File{
		ID:          uuid.NewString(),
		OwnerID:     p.ID(),
		Filename:    name,
		StorageKey:  key,
		ContentType: contentType,
		Size:        size,
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateFile(ctx, f); err != nil {
		_ = s.blobs.Delete(ctx, key)
		return nil, fmt.Errorf("file: create: %w", err)
	}
	return f, nil
}

// putCounted streams r to the blob store and reports how many bytes it
// carried.
func (s *Service) putCounted(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	cr := &countingReader{r: r}
	if err := s.blobs.Put(ctx, key, cr, contentType); err != nil {
		return 0, fmt.Errorf("file: store blob: %w", err)
	}
	return cr.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Get returns one file's metadata under the ownership rules.
func (s *Service) Get(ctx context.Context, p *auth.Principal, id string) (*File, error) {
	return s.load(ctx, p, auth.ActionRead, id)
}

// Download returns the metadata and an open reader over the bytes. The
// caller closes the reader.
func (s *Service) Download(ctx context.Context, p *auth.Principal, id string) (*File, io.ReadCloser, error) {
	f, err := s.load(ctx, p, auth.ActionRead, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, f.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("file: open blob: %w", err)
	}
	return f, rc, nil
}

// List returns files visible to the principal: everything for a
// superuser, own files otherwise.
func (s *Service) List(ctx context.Context, p *auth.Principal, limit, offset int) ([]*File, int, error) {
	if p == nil {
		return nil, 0, auth.ErrUnauthenticated
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ownerID, _ := auth.ListScope(p)
	files, total, err := s.store.ListFiles(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("file: list: %w", err)
	}
	return files, total, nil
}

// Delete removes the metadata first, then the blob. A blob left behind
// by a crash between the two is unreachable and harmless.
func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	f, err := s.load(ctx, p, auth.ActionDelete, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFile(ctx, f.ID); err != nil {
		return fmt.Errorf("file: delete: %w", err)
	}
	if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
		return fmt.Errorf("file: delete blob: %w", err)
	}
	return nil
}

// load fetches a file and runs the ownership check. Anonymous callers
// never reach the store.
func (s *Service) load(ctx context.Context, p *auth.Principal, action auth.Action, id string) (*File, error) {
	if p == nil {
		return nil, auth.ErrUnauthenticated
	}
	f, err := s.store.FindFile(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("file: find: %w", err)
	}
	if err := auth.Authorize(p, action, f.Ref()).Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// SanitizeFilename strips path components and collapses anything
// outside [A-Za-z0-9._-] to underscores. It returns "" when nothing
// safe remains.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	// Drop any directory part, whichever separator the client used.
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	// Trim dots only; an all-underscore base still keeps its extension.
	out := strings.Trim(b.String(), ".")
	if out == "" || out == "." || out == ".." {
		return ""
	}
	return out
}
