// Package entropy generates ULID identifiers safely across goroutines.
package entropy

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// safeMonotonicReader provides a safe entropy to be used in concurrent tasks.
// https://github.com/oklog/ulid/blob/0d4fda9d6345755e157a256fd33d48556c5f4a7a/ulid_test.go#L633-L636
type safeMonotonicReader struct {
	mtx sync.Mutex
	ulid.MonotonicReader
}

func (r *safeMonotonicReader) MonotonicRead(ms uint64, p []byte) (err error) {
	r.mtx.Lock()
	err = r.MonotonicReader.MonotonicRead(ms, p)
	r.mtx.Unlock()

	return err
}

// Generator creates lexically sortable unique identifiers.
type Generator struct {
	reader io.Reader
	now    func() time.Time
}

// NewGenerator returns a Generator backed by a monotonic reader.
func NewGenerator() *Generator {
	// nolint:gosec // crypto/rand not necessary for ULID generation
	monotonic := ulid.Monotonic(rand.New(
		rand.NewSource(time.Now().UnixNano()),
	), 0)

	return &Generator{
		reader: &safeMonotonicReader{MonotonicReader: monotonic},
		now:    time.Now,
	}
}

// New returns a new 26 character identifier.
func (g *Generator) New() (string, error) {
	id, err := ulid.New(ulid.Timestamp(g.now()), g.reader)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}
