package classes

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gradebook/internal/cache"

	"github.com/go-chi/chi/v5"
)

type countingDirectory struct {
	*MemoryDirectory
	lookups atomic.Int32
	delay   time.Duration
	err     error
}

func (d *countingDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	d.lookups.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return "", d.err
	}
	return d.MemoryDirectory.ClassName(ctx, classID)
}

func TestCachedDirectoryServesFromCache(t *testing.T) {
	next := &countingDirectory{MemoryDirectory: NewMemoryDirectory(map[string]string{"c1": "7º Ano A"})}
	d := NewCachedDirectory(next, nil, time.Minute)

	for i := 0; i < 3; i++ {
		name, err := d.ClassName(context.Background(), "c1")
		if err != nil || name != "7º Ano A" {
			t.Fatalf("lookup %d: name=%q err=%v", i, name, err)
		}
	}
	if n := next.lookups.Load(); n != 1 {
		t.Fatalf("expected 1 backing lookup, got %d", n)
	}
}

func TestCachedDirectoryDoesNotCacheErrors(t *testing.T) {
	next := &countingDirectory{MemoryDirectory: NewMemoryDirectory(nil), err: errors.New("down")}
	d := NewCachedDirectory(next, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := d.ClassName(context.Background(), "c1"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if n := next.lookups.Load(); n != 2 {
		t.Fatalf("expected 2 backing lookups, got %d", n)
	}

	next.err = nil
	if _, err := d.ClassName(context.Background(), "missing"); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("expected ErrClassNotFound, got %v", err)
	}
}

func TestCachedDirectoryCollapsesConcurrentMisses(t *testing.T) {
	next := &countingDirectory{MemoryDirectory: NewMemoryDirectory(map[string]string{"c1": "8º Ano"}), delay: 50 * time.Millisecond}
	d := NewCachedDirectory(next, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if name, err := d.ClassName(context.Background(), "c1"); err != nil || name != "8º Ano" {
				t.Errorf("name=%q err=%v", name, err)
			}
		}()
	}
	wg.Wait()
	if n := next.lookups.Load(); n != 1 {
		t.Fatalf("expected 1 backing lookup, got %d", n)
	}
}

func TestCachedDirectorySetClassNameInvalidates(t *testing.T) {
	c := cache.New[string]()
	next := &countingDirectory{MemoryDirectory: NewMemoryDirectory(map[string]string{"c1": "Old"})}
	d := NewCachedDirectory(next, c, time.Hour)

	if name, _ := d.ClassName(context.Background(), "c1"); name != "Old" {
		t.Fatalf("expected Old, got %q", name)
	}
	if err := d.SetClassName(context.Background(), "c1", "  New  "); err != nil {
		t.Fatalf("set class name: %v", err)
	}
	if name, _ := d.ClassName(context.Background(), "c1"); name != "New" {
		t.Fatalf("expected New after rename, got %q", name)
	}
	if err := d.SetClassName(context.Background(), "c1", " "); !errors.Is(err, ErrClassNameRequired) {
		t.Fatalf("expected ErrClassNameRequired, got %v", err)
	}
}

// gatedDirectory reads the name, then blocks until release is closed.
type gatedDirectory struct {
	*MemoryDirectory
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (d *gatedDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	name, err := d.MemoryDirectory.ClassName(ctx, classID)
	d.once.Do(func() { close(d.read) })
	<-d.release
	return name, err
}

func TestCachedDirectoryRenameDuringLookupIsNotOverwritten(t *testing.T) {
	next := &gatedDirectory{
		MemoryDirectory: NewMemoryDirectory(map[string]string{"c1": "Old"}),
		read:            make(chan struct{}),
		release:         make(chan struct{}),
	}
	d := NewCachedDirectory(next, nil, time.Hour)

	done := make(chan string, 1)
	go func() {
		name, _ := d.ClassName(context.Background(), "c1")
		done <- name
	}()

	<-next.read
	if err := d.SetClassName(context.Background(), "c1", "New"); err != nil {
		t.Fatalf("set class name: %v", err)
	}
	close(next.release)
	if got := <-done; got != "Old" {
		t.Fatalf("in-flight lookup: expected Old, got %q", got)
	}

	name, err := d.ClassName(context.Background(), "c1")
	if err != nil || name != "New" {
		t.Fatalf("expected New after rename, got name=%q err=%v", name, err)
	}
}

type ctxDirectory struct {
	*MemoryDirectory
}

func (d ctxDirectory) ClassName(ctx context.Context, classID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.MemoryDirectory.ClassName(ctx, classID)
}

func TestCachedDirectoryLookupIgnoresCallerCancellation(t *testing.T) {
	d := NewCachedDirectory(ctxDirectory{NewMemoryDirectory(map[string]string{"c1": "6º Ano"})}, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	name, err := d.ClassName(ctx, "c1")
	if err != nil || name != "6º Ano" {
		t.Fatalf("expected shared lookup to survive cancellation, got name=%q err=%v", name, err)
	}
}

func TestHandlerSetAndGetClassName(t *testing.T) {
	dir := NewCachedDirectory(NewMemoryDirectory(nil), nil, time.Minute)
	h := NewHandler(dir)
	r := chi.NewRouter()
	r.Get("/classes/{classID}", h.Get)
	r.Put("/classes/{classID}", h.SetName)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/classes/c1", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before rename, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/classes/c1", bytes.NewBufferString(`{"name":"9º Ano"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/classes/c1", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("9º Ano")) {
		t.Fatalf("expected renamed class, got %d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/classes/c1", bytes.NewBufferString(`{"name":""}`)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty name, got %d", w.Code)
	}
}
