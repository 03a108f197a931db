package workflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sink hands a downloaded artifact to the host environment under the
// artifact's own filename.
type Sink interface {
	Save(ctx context.Context, filename string, r io.Reader) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, filename string, r io.Reader) error

func (f SinkFunc) Save(ctx context.Context, filename string, r io.Reader) error {
	return f(ctx, filename, r)
}

// DirSink writes artifacts into a local directory. A failed write leaves
// no partial file behind.
type DirSink struct {
	Dir string
}

func (d DirSink) Save(ctx context.Context, filename string, r io.Reader) error {
	base := filepath.Base(filename)
	if base != filename || strings.ContainsAny(filename, `/\`) || base == "." || base == ".." {
		return fmt.Errorf("refusing unsafe artifact name %q", filename)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(d.Dir, "."+base+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		return fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", base, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.Dir, base)); err != nil {
		return fmt.Errorf("rename %s: %w", base, err)
	}
	committed = true
	return nil
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// TeeSink streams an artifact to Primary while mirroring the same bytes to
// each of Mirrors. Only Primary decides success; mirror failures are passed
// to OnMirrorError and never interrupt Primary.
type TeeSink struct {
	Primary       Sink
	Mirrors       []Sink
	OnMirrorError func(filename string, err error)
}

func (t TeeSink) Save(ctx context.Context, filename string, r io.Reader) error {
	if len(t.Mirrors) == 0 {
		return t.Primary.Save(ctx, filename, r)
	}

	var wg sync.WaitGroup
	pipes := make([]*io.PipeWriter, len(t.Mirrors))
	writers := make([]io.Writer, len(t.Mirrors))
	for i, m := range t.Mirrors {
		pr, pw := io.Pipe()
		pipes[i] = pw
		writers[i] = &softWriter{w: pw}

		wg.Add(1)
		go func(m Sink) {
			defer wg.Done()
			err := m.Save(ctx, filename, pr)
			if err != nil {
				// Unblock the writer side; softWriter drops the rest.
				pr.CloseWithError(err)
				if t.OnMirrorError != nil {
					t.OnMirrorError(filename, err)
				}
				return
			}
			pr.Close()
		}(m)
	}

	err := t.Primary.Save(ctx, filename, io.TeeReader(r, io.MultiWriter(writers...)))
	for _, pw := range pipes {
		if err != nil {
			pw.CloseWithError(err)
		} else {
			pw.Close()
		}
	}
	wg.Wait()
	return err
}

// softWriter remembers the first write error and then discards input, so a
// failing mirror cannot fail the tee.
type softWriter struct {
	w   io.Writer
	err error
}

func (s *softWriter) Write(p []byte) (int, error) {
	if s.err == nil {
		_, s.err = s.w.Write(p)
	}
	return len(p), nil
}
