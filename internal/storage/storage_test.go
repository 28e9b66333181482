package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeBackend struct {
	objects map[string][]byte
	puts    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[string][]byte)}
}

func (f *fakeBackend) EnsureBucket(context.Context) error { return nil }

func (f *fakeBackend) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.puts++
	return nil
}

func (f *fakeBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBackend) Bucket() string { return "test-bucket" }

func TestStoragePut_RejectsNonImages(t *testing.T) {
	backend := newFakeBackend()
	st := NewStorage(backend)

	err := st.Put(context.Background(), "a.txt", strings.NewReader("hello"), 5, "text/plain")
	if !errors.Is(err, ErrUnsupportedContentType) {
		t.Fatalf("expected ErrUnsupportedContentType, got %v", err)
	}
	if backend.puts != 0 {
		t.Fatalf("rejected upload reached the backend")
	}

	if err := st.Put(context.Background(), "a.png", strings.NewReader("png"), 3, "image/png"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if backend.puts != 1 {
		t.Fatalf("accepted upload never reached the backend")
	}
}

func TestStorageGet_MissingObject(t *testing.T) {
	st := NewStorage(newFakeBackend())

	if _, err := st.Get(context.Background(), "nope"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
