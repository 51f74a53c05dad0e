// Package checksum implements the per-output-file rolling content hash
// (C4). SHA-1 is sufficient here — this is collision detection for change
// notification, not a security boundary — grounded on the original
// rconfd's src/checksum.rs (named in _INDEX.md).
package checksum

import (
	"crypto/sha1" //nolint:gosec // collision detection only, not a security boundary
	"io"
	"os"
	"sync"
)

// Digest is a stored SHA-1 hash of a file's contents.
type Digest [sha1.Size]byte

// Store maps output_file_path -> Optional<Digest>.
type Store struct {
	mu   sync.Mutex
	data map[string]Digest
	seen map[string]bool
}

// NewStore returns an empty checksum store.
func NewStore() *Store {
	return &Store{data: make(map[string]Digest), seen: make(map[string]bool)}
}

// HashFile reads and hashes the file at path, stores the new digest, and
// reports whether it differs from the previously stored one. A first-time
// insertion (no previous digest) always reports changed==true; this is
// intentional and used by the broker as "changed since last pass".
func (st *Store) HashFile(path string) (changed bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha1.New() //nolint:gosec
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	var d Digest
	copy(d[:], h.Sum(nil))

	st.mu.Lock()
	defer st.mu.Unlock()
	prev, existed := st.data[path]
	st.data[path] = d
	st.seen[path] = true
	return !existed || prev != d, nil
}
