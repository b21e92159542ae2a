package roicache

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// FileFingerprint hashes the path, size and modification time of every file.
// The order of 'paths' is significant.
func FileFingerprint(paths []string) (string, error) {
	h := blake3.New()
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			return "", fmt.Errorf("Failed to fingerprint %v: %w", p, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", p, st.Size(), st.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentFingerprint hashes a blob
func ContentFingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
