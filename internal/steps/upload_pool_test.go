package steps

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Convoy/internal/cf"
)

func TestUploadPool_UploadCompletes(t *testing.T) {
	pool := NewUploadPool(2)

	pool.Begin("u1",
		func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("archive-bytes")), nil
		},
		func(_ context.Context, content io.Reader) (*cf.Package, error) {
			if _, err := io.Copy(io.Discard, content); err != nil {
				return nil, err
			}
			return &cf.Package{GUID: "pkg-1", State: "READY"}, nil
		},
	)

	status, known := pool.Wait("u1", time.Second)
	if !known {
		t.Fatal("upload should be known to the pool")
	}
	if !status.Done {
		t.Fatal("upload should be done")
	}
	if status.Err != nil {
		t.Fatalf("unexpected error: %v", status.Err)
	}
	if status.PackageGUID != "pkg-1" {
		t.Errorf("expected pkg-1, got %q", status.PackageGUID)
	}
	if status.BytesSent != int64(len("archive-bytes")) {
		t.Errorf("expected %d bytes sent, got %d", len("archive-bytes"), status.BytesSent)
	}
}

func TestUploadPool_WaitTimesOutWhileRunning(t *testing.T) {
	pool := NewUploadPool(1)
	release := make(chan struct{})

	pool.Begin("slow",
		func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("x")), nil
		},
		func(context.Context, io.Reader) (*cf.Package, error) {
			<-release
			return &cf.Package{GUID: "pkg-slow"}, nil
		},
	)

	status, known := pool.Wait("slow", 20*time.Millisecond)
	if !known {
		t.Fatal("upload should be known")
	}
	if status.Done {
		t.Fatal("upload should still be in flight")
	}

	close(release)
	status, _ = pool.Wait("slow", time.Second)
	if !status.Done || status.PackageGUID != "pkg-slow" {
		t.Fatalf("expected finished upload, got %+v", status)
	}
}

func TestUploadPool_BeginIsIdempotentPerID(t *testing.T) {
	pool := NewUploadPool(2)
	opens := 0

	begin := func() {
		pool.Begin("dup",
			func() (io.ReadCloser, error) {
				opens++
				return io.NopCloser(strings.NewReader("x")), nil
			},
			func(_ context.Context, content io.Reader) (*cf.Package, error) {
				io.Copy(io.Discard, content)
				return &cf.Package{GUID: "pkg"}, nil
			},
		)
	}

	begin()
	begin()

	if _, known := pool.Wait("dup", time.Second); !known {
		t.Fatal("upload should be known")
	}
	if opens != 1 {
		t.Errorf("second Begin with the same id must not start a new upload, got %d opens", opens)
	}
}

func TestUploadPool_UnknownAfterForget(t *testing.T) {
	pool := NewUploadPool(1)

	pool.Begin("gone",
		func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("x")), nil
		},
		func(_ context.Context, content io.Reader) (*cf.Package, error) {
			io.Copy(io.Discard, content)
			return &cf.Package{GUID: "pkg"}, nil
		},
	)
	pool.Wait("gone", time.Second)
	pool.Forget("gone")

	if _, known := pool.Wait("gone", time.Millisecond); known {
		t.Error("forgotten upload must be unknown")
	}

	// Не начинавшаяся загрузка тоже неизвестна (рестарт движка).
	if _, known := pool.Wait("never-started", time.Millisecond); known {
		t.Error("never-started upload must be unknown")
	}
}

func TestUploadPool_OpenFailureSurfaces(t *testing.T) {
	pool := NewUploadPool(1)
	boom := errors.New("archive missing")

	pool.Begin("bad",
		func() (io.ReadCloser, error) { return nil, boom },
		func(context.Context, io.Reader) (*cf.Package, error) {
			t.Error("send must not run when open fails")
			return nil, nil
		},
	)

	status, known := pool.Wait("bad", time.Second)
	if !known || !status.Done {
		t.Fatalf("expected finished upload, got known=%v status=%+v", known, status)
	}
	if !errors.Is(status.Err, boom) {
		t.Errorf("expected open error, got %v", status.Err)
	}
}
