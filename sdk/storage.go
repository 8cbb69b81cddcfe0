package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"time"
)

const bucketsPath = "/api/storage/buckets"

// Storage manages objects in storage buckets.
type Storage struct {
	transport *httpTransport
}

// From returns a handle on bucket. No request is made.
func (s *Storage) From(bucket string) *Bucket {
	return &Bucket{transport: s.transport, name: bucket}
}

// Bucket is a handle on a single storage bucket.
type Bucket struct {
	transport *httpTransport
	name      string
}

// StoredObject describes an object as reported by the backend.
type StoredObject struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
	URL        string    `json:"url,omitempty"`
}

// ObjectList is one page of a bucket listing.
type ObjectList struct {
	Objects []StoredObject `json:"objects"`
	Total   int            `json:"total"`
}

// UploadOptions controls an upload.
type UploadOptions struct {
	// ContentType of the object. Detected by the backend when empty.
	ContentType string
	// FileName sent in the multipart part. Defaults to the base of the key.
	FileName string
}

// ListOptions filters a listing.
type ListOptions struct {
	Prefix string
	Limit  int
	Offset int
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

func (b *Bucket) objectsPath() string {
	return escapePath(bucketsPath, b.name, "objects")
}

func (b *Bucket) objectPath(key string) string {
	return escapePath(bucketsPath, b.name, "objects", key)
}

func (b *Bucket) validate(key string, needKey bool) error {
	if b.name == "" {
		return fmt.Errorf("%w: empty bucket name", ErrInvalidInput)
	}
	if needKey && key == "" {
		return fmt.Errorf("%w: empty object key", ErrInvalidInput)
	}
	return nil
}

// Upload stores the content of r under key, replacing any existing object.
//
// Example:
//
//	f, _ := os.Open("avatar.png")
//	defer f.Close()
//	obj, err := client.Storage().From("avatars").Upload(ctx, "u1/avatar.png", f, nil)
func (b *Bucket) Upload(ctx context.Context, key string, r io.Reader, opts *UploadOptions) (*StoredObject, error) {
	if err := b.validate(key, true); err != nil {
		return nil, err
	}
	return b.upload(ctx, http.MethodPut, b.objectPath(key), path.Base(key), r, opts)
}

// UploadAuto stores the content of r under a key chosen by the backend,
// derived from fileName.
func (b *Bucket) UploadAuto(ctx context.Context, fileName string, r io.Reader, opts *UploadOptions) (*StoredObject, error) {
	if err := b.validate(fileName, true); err != nil {
		return nil, err
	}
	return b.upload(ctx, http.MethodPost, b.objectsPath(), fileName, r, opts)
}

func (b *Bucket) upload(ctx context.Context, method, p, fileName string, r io.Reader, opts *UploadOptions) (*StoredObject, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reader", ErrInvalidInput)
	}
	contentType := "application/octet-stream"
	if opts != nil {
		if opts.FileName != "" {
			fileName = opts.FileName
		}
		if opts.ContentType != "" {
			contentType = opts.ContentType
		}
	}

	// The body is buffered so a configured retry can resend it.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var obj StoredObject
	err = b.transport.call(ctx, request{
		Method:      method,
		Path:        p,
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	}, &obj)
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// Download returns the raw content of the object at key.
func (b *Bucket) Download(ctx context.Context, key string) ([]byte, error) {
	if err := b.validate(key, true); err != nil {
		return nil, err
	}
	resp, err := b.transport.do(ctx, request{
		Method: http.MethodGet,
		Path:   b.objectPath(key),
		Header: map[string]string{"Accept": "*/*"},
	})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// List returns one page of objects, optionally restricted to a key prefix.
func (b *Bucket) List(ctx context.Context, opts *ListOptions) (*ObjectList, error) {
	if err := b.validate("", false); err != nil {
		return nil, err
	}
	q := url.Values{}
	if opts != nil {
		if opts.Prefix != "" {
			q.Set("prefix", opts.Prefix)
		}
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			q.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	var list ObjectList
	err := b.transport.call(ctx, request{
		Method: http.MethodGet,
		Path:   b.objectsPath(),
		Query:  q.Encode(),
	}, &list)
	if err != nil {
		return nil, err
	}
	if list.Objects == nil {
		list.Objects = []StoredObject{}
	}
	return &list, nil
}

// Remove deletes the object at key.
func (b *Bucket) Remove(ctx context.Context, key string) error {
	if err := b.validate(key, true); err != nil {
		return err
	}
	return b.transport.call(ctx, request{
		Method: http.MethodDelete,
		Path:   b.objectPath(key),
	}, nil)
}

// PublicURL returns the download URL of key without contacting the backend.
// It is only reachable without credentials if the bucket is public.
func (b *Bucket) PublicURL(key string) string {
	return b.transport.baseURL + b.objectPath(key)
}
