package mockbase

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

type object struct {
	data       []byte
	mimeType   string
	uploadedAt time.Time
}

// objectStore keeps bucket contents in memory
type objectStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*object
	now     func() time.Time
}

func newObjectStore(now func() time.Time) *objectStore {
	return &objectStore{
		buckets: make(map[string]map[string]*object),
		now:     now,
	}
}

func (s *objectStore) put(bucket, key string, data []byte, mimeType string) *object {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]*object)
		s.buckets[bucket] = b
	}
	obj := &object{data: data, mimeType: mimeType, uploadedAt: s.now().UTC()}
	b[key] = obj
	return obj
}

// freeKey returns name, or name-N.ext when name is already taken
func (s *objectStore) freeKey(bucket, name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.buckets[bucket]
	if _, taken := b[name]; !taken {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
		if _, taken := b[candidate]; !taken {
			return candidate
		}
	}
}

func (s *objectStore) get(bucket, key string) (*object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	return obj, ok
}

func (s *objectStore) remove(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket][key]; !ok {
		return false
	}
	delete(s.buckets[bucket], key)
	return true
}

// keys returns the keys of bucket starting with prefix, sorted
func (s *objectStore) keys(bucket, prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func objectParams(c *fiber.Ctx) (bucket, key string, err error) {
	if bucket, err = url.PathUnescape(c.Params("bucket")); err != nil || bucket == "" {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "invalid bucket name")
	}
	if raw := c.Params("key"); raw != "" {
		if key, err = url.PathUnescape(raw); err != nil {
			return "", "", fiber.NewError(fiber.StatusBadRequest, "invalid object key")
		}
	}
	return bucket, key, nil
}

func (s *Server) describe(c *fiber.Ctx, bucket, key string, obj *object) ObjectResponse {
	return ObjectResponse{
		Bucket:     bucket,
		Key:        key,
		Size:       int64(len(obj.data)),
		MimeType:   obj.mimeType,
		UploadedAt: obj.uploadedAt,
		URL: c.BaseURL() + "/api/storage/buckets/" + url.PathEscape(bucket) +
			"/objects/" + url.PathEscape(key),
	}
}

// readUpload reads the multipart "file" part
func readUpload(c *fiber.Ctx) (name string, data []byte, mimeType string, err error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, "", fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, "", err
	}
	defer f.Close()
	if data, err = io.ReadAll(f); err != nil {
		return "", nil, "", err
	}
	mimeType = fh.Header.Get(fiber.HeaderContentType)
	if mimeType == "" {
		mimeType = fiber.MIMEOctetStream
	}
	return fh.Filename, data, mimeType, nil
}

// uploadObject handles PUT .../objects/:key
func (s *Server) uploadObject(c *fiber.Ctx) error {
	bucket, key, err := objectParams(c)
	if err != nil {
		return err
	}
	_, data, mimeType, err := readUpload(c)
	if err != nil {
		return err
	}
	obj := s.objects.put(bucket, key, data, mimeType)
	return c.Status(fiber.StatusCreated).JSON(s.describe(c, bucket, key, obj))
}

// uploadObjectAuto handles POST .../objects; the key is derived from the
// uploaded file name.
func (s *Server) uploadObjectAuto(c *fiber.Ctx) error {
	bucket, _, err := objectParams(c)
	if err != nil {
		return err
	}
	name, data, mimeType, err := readUpload(c)
	if err != nil {
		return err
	}
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, "uploaded file has no name")
	}
	key := s.objects.freeKey(bucket, path.Base(name))
	obj := s.objects.put(bucket, key, data, mimeType)
	return c.Status(fiber.StatusCreated).JSON(s.describe(c, bucket, key, obj))
}

// downloadObject handles GET .../objects/:key
func (s *Server) downloadObject(c *fiber.Ctx) error {
	bucket, key, err := objectParams(c)
	if err != nil {
		return err
	}
	obj, ok := s.objects.get(bucket, key)
	if !ok {
		return apiError(c, fiber.StatusNotFound, ErrCodeNotFound, "object "+key+" not found in bucket "+bucket)
	}
	c.Set(fiber.HeaderContentType, obj.mimeType)
	return c.Send(obj.data)
}

// listObjects handles GET .../objects?prefix=&limit=&offset=
func (s *Server) listObjects(c *fiber.Ctx) error {
	bucket, _, err := objectParams(c)
	if err != nil {
		return err
	}
	offset, err := nonNegativeQueryInt(c, "offset")
	if err != nil {
		return err
	}
	limit, err := nonNegativeQueryInt(c, "limit")
	if err != nil {
		return err
	}

	keys := s.objects.keys(bucket, c.Query("prefix"))
	total := len(keys)
	keys = page(keys, offset, limit)

	list := ObjectListResponse{Objects: make([]ObjectResponse, 0, len(keys)), Total: total}
	for _, key := range keys {
		if obj, ok := s.objects.get(bucket, key); ok {
			list.Objects = append(list.Objects, s.describe(c, bucket, key, obj))
		}
	}
	return c.JSON(list)
}

// deleteObject handles DELETE .../objects/:key
func (s *Server) deleteObject(c *fiber.Ctx) error {
	bucket, key, err := objectParams(c)
	if err != nil {
		return err
	}
	if !s.objects.remove(bucket, key) {
		return apiError(c, fiber.StatusNotFound, ErrCodeNotFound, "object "+key+" not found in bucket "+bucket)
	}
	c.Status(fiber.StatusNoContent)
	return nil
}

func nonNegativeQueryInt(c *fiber.Ctx, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+" "+strconv.Quote(raw))
	}
	return n, nil
}

// page applies offset and limit; a zero limit means no limit
func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
