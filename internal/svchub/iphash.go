package svchub

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// IPHash produces a short, stable, non-reversible digest of an IP
// address for logging, grounded on original_source/copyparty/
// svchub.py's "self.iphash = HMaccas(os.path.join(self.E.cfg, 'iphash'), 8)":
// a keyed hash whose key persists across restarts (in cfgDir/iphash)
// so the same client always redacts to the same short tag, without
// ever storing the real address.
type IPHash struct {
	key []byte
	n   int
}

// NewIPHash loads or creates the persisted key under cfgDir/iphash and
// returns a hasher truncating digests to n hex characters.
func NewIPHash(cfgDir string, n int) (*IPHash, error) {
	path := filepath.Join(cfgDir, "iphash")
	key, err := os.ReadFile(path)
	if err != nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate iphash key: %w", err)
		}
		if mkErr := os.MkdirAll(cfgDir, 0o700); mkErr == nil {
			_ = os.WriteFile(path, key, 0o600)
		}
	}
	return &IPHash{key: key, n: n}, nil
}

// Hash returns the truncated keyed digest of ip.
func (h *IPHash) Hash(ip string) string {
	sum := blake2b.Sum256(append(append([]byte{}, h.key...), ip...))
	s := hex.EncodeToString(sum[:])
	if h.n > 0 && h.n < len(s) {
		return s[:h.n]
	}
	return s
}
