package decide

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// ChangesetHash digests a changeset snapshot: ordered (path, kind, content)
// triples. Approvals are pinned to this value, so any pushed commit that
// alters paths, kinds, or content yields a different hash.
func ChangesetHash(files []ChangedFile) string {
	sorted := make([]ChangedFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, f := range sorted {
		content := sha256.Sum256(f.Content)
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		h.Write([]byte(f.Kind))
		h.Write([]byte{0})
		h.Write(content[:])
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
