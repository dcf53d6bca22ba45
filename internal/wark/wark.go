// Package wark computes the content fingerprint ("wark") that
// identifies an upload, and the per-file access-key suffix ("filekey")
// appended to search results when a volume requires one (spec §3, §4.5.4).
package wark

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// FromHashlist derives the wark for an upload of the given size and
// per-chunk hash list, salted with salt. It is stable for a given
// (size, hashlist, salt) triple and is the identity used by FSearch.
func FromHashlist(salt string, size int64, hashlist []string) string {
	h, err := blake2b.New256([]byte(salt))
	if err != nil {
		// blake2b.New256 only fails for oversized keys; salt is never
		// that long in practice.
		panic(fmt.Sprintf("wark: init hash: %v", err))
	}
	fmt.Fprintf(h, "%d\n", size)
	for _, c := range hashlist {
		h.Write([]byte(c))
		h.Write([]byte{'\n'})
	}
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum)
}

// FileKey derives the per-file access-key suffix for a result row.
// ino is the inode number on POSIX, or 0 on Windows (the original
// source substitutes 0 there since inode numbers aren't meaningful).
func FileKey(saltKey, absPath string, size int64, ino uint64) string {
	h, err := blake2b.New256([]byte(saltKey))
	if err != nil {
		panic(fmt.Sprintf("wark: init filekey hash: %v", err))
	}
	writeParts := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	writeParts(absPath, strconv.FormatInt(size, 10), strconv.FormatUint(ino, 10))
	sum := h.Sum(nil)
	return strings.ToLower(base64.RawURLEncoding.EncodeToString(sum))
}
