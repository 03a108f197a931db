package workflow

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDirSink_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := DirSink{Dir: dir}

	if err := sink.Save(context.Background(), "out_123.sql", strings.NewReader("INSERT INTO t VALUES (1);")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out_123.sql"))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "INSERT INTO t VALUES (1);" {
		t.Errorf("content = %q", data)
	}
	assertOnlyFiles(t, dir, "out_123.sql")
}

func TestDirSink_UnsafeNames(t *testing.T) {
	sink := DirSink{Dir: t.TempDir()}
	for _, name := range []string{"../escape.sql", "a/b.sql", `a\b.sql`, "..", ".", ""} {
		if err := sink.Save(context.Background(), name, strings.NewReader("x")); err == nil {
			t.Errorf("Save(%q) succeeded, want error", name)
		}
	}
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, errors.New("connection reset")
	}
	n := min(len(p), f.after)
	for i := range n {
		p[i] = 'x'
	}
	f.after -= n
	return n, nil
}

func TestDirSink_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	err := DirSink{Dir: dir}.Save(context.Background(), "out.sql", &failingReader{after: 10})
	if err == nil {
		t.Fatal("expected error")
	}
	assertOnlyFiles(t, dir)
}

func TestDirSink_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := DirSink{Dir: dir}.Save(ctx, "out.sql", strings.NewReader("data"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	assertOnlyFiles(t, dir)
}

func assertOnlyFiles(t *testing.T, dir string, want ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("files = %v, want %v", got, want)
	}
}

// bufferSink collects everything saved to it.
type bufferSink struct {
	mu   sync.Mutex
	name string
	data bytes.Buffer
	fail error
}

func (b *bufferSink) Save(_ context.Context, name string, r io.Reader) error {
	if b.fail != nil {
		return b.fail
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
	_, err := io.Copy(&b.data, r)
	return err
}

func TestTeeSink(t *testing.T) {
	payload := strings.Repeat("INSERT INTO t VALUES (1);\n", 5000)

	t.Run("mirrors receive the same bytes", func(t *testing.T) {
		primary, mirror := &bufferSink{}, &bufferSink{}
		tee := TeeSink{Primary: primary, Mirrors: []Sink{mirror}}

		if err := tee.Save(context.Background(), "out.sql", strings.NewReader(payload)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if primary.data.String() != payload || mirror.data.String() != payload {
			t.Errorf("primary %d bytes, mirror %d bytes, want %d", primary.data.Len(), mirror.data.Len(), len(payload))
		}
		if mirror.name != "out.sql" {
			t.Errorf("mirror name = %q", mirror.name)
		}
	})

	t.Run("mirror failure does not fail primary", func(t *testing.T) {
		primary := &bufferSink{}
		mirror := &bufferSink{fail: errors.New("bucket unavailable")}
		var reported error
		tee := TeeSink{
			Primary:       primary,
			Mirrors:       []Sink{mirror},
			OnMirrorError: func(_ string, err error) { reported = err },
		}

		if err := tee.Save(context.Background(), "out.sql", strings.NewReader(payload)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if primary.data.String() != payload {
			t.Errorf("primary got %d bytes", primary.data.Len())
		}
		if reported == nil {
			t.Error("mirror error not reported")
		}
	})

	t.Run("primary failure is returned", func(t *testing.T) {
		primary := &bufferSink{fail: errors.New("client gone")}
		mirror := &bufferSink{}
		tee := TeeSink{Primary: primary, Mirrors: []Sink{mirror}}

		if err := tee.Save(context.Background(), "out.sql", strings.NewReader(payload)); err == nil {
			t.Error("expected error")
		}
	})
}
