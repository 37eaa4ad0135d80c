package benchmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quickshadows/scripts/backend"
)

// fakeStore is an in-memory backend.StorageJanitor with fault injection.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int
	pending map[string]*fakeUpload // by upload ID
	objects map[string][]byte

	// faults
	createErr   error
	completeErr error
	abortErr    error
	headErr     error
	getErr      error
	deleteErr   map[string]error
	partErr     map[int]error
	partDelay   func(part int) time.Duration
	readErr     error // returned by GetObject bodies after readAfter bytes
	readAfter   int

	// observations
	creates        atomic.Int32
	completes      atomic.Int32
	aborts         atomic.Int32
	inFlight       atomic.Int32
	maxInFlight    atomic.Int32
	partSizes      map[int]int64
	completedParts []backend.CompletedPart
	abortCtxErr    error
	stalePending   []backend.PendingUpload
}

type fakeUpload struct {
	key   string
	parts map[int][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pending:   make(map[string]*fakeUpload),
		objects:   make(map[string][]byte),
		partSizes: make(map[int]int64),
	}
}

func (f *fakeStore) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	f.creates.Add(1)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("upload-%d", f.nextID)
	f.pending[id] = &fakeUpload{key: key, parts: make(map[int][]byte)}
	return id, nil
}

func (f *fakeStore) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.ReadSeeker, size int64) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if n <= prev || f.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}

	if f.partDelay != nil {
		select {
		case <-time.After(f.partDelay(partNumber)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.partErr[partNumber]; err != nil {
		return "", err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("part %d: body has %d bytes, declared %d", partNumber, len(data), size)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.pending[uploadID]
	if !ok {
		return "", errors.New("no such upload")
	}
	up.parts[partNumber] = data
	f.partSizes[partNumber] = size
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeStore) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []backend.CompletedPart) error {
	f.completes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedParts = append([]backend.CompletedPart(nil), parts...)
	if f.completeErr != nil {
		return f.completeErr
	}

	up, ok := f.pending[uploadID]
	if !ok {
		return errors.New("no such upload")
	}
	var buf bytes.Buffer
	for i, p := range parts {
		if p.PartNumber != i+1 {
			return fmt.Errorf("parts out of order at %d: %d", i, p.PartNumber)
		}
		if p.ETag != fmt.Sprintf("etag-%d", p.PartNumber) {
			return fmt.Errorf("bad etag for part %d", p.PartNumber)
		}
		buf.Write(up.parts[p.PartNumber])
	}
	f.objects[up.key] = buf.Bytes()
	delete(f.pending, uploadID)
	return nil
}

func (f *fakeStore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	f.aborts.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCtxErr = ctx.Err()
	if f.abortErr != nil {
		return f.abortErr
	}
	delete(f.pending, uploadID)
	return nil
}

func (f *fakeStore) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	if f.headErr != nil {
		return 0, f.headErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return 0, backend.ErrNotFound
	}
	return int64(len(data)), nil
}

func (f *fakeStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, backend.ErrNotFound
	}
	var r io.Reader = bytes.NewReader(data)
	if f.readErr != nil {
		r = io.MultiReader(io.LimitReader(r, int64(f.readAfter)), errReader{f.readErr})
	}
	return io.NopCloser(r), nil
}

func (f *fakeStore) ListMultipartUploads(ctx context.Context, bucket, prefix string) ([]backend.PendingUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backend.PendingUpload
	for _, up := range f.stalePending {
		if strings.HasPrefix(up.Key, prefix) {
			out = append(out, up)
		}
	}
	for id, up := range f.pending {
		if strings.HasPrefix(up.key, prefix) {
			out = append(out, backend.PendingUpload{Key: up.key, UploadID: id})
		}
	}
	return out, nil
}

func (f *fakeStore) ListObjects(ctx context.Context, bucket, prefix string) ([]backend.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backend.ObjectInfo
	for key, data := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, backend.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *fakeStore) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ backend.StorageJanitor = (*fakeStore)(nil)
