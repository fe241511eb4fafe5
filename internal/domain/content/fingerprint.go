package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Fingerprint identifies one revision of a post body. Processed content is
// cached under it so an edit invalidates the cached outline.
type Fingerprint struct {
	PostID      string
	UpdatedUnix int64
	ContentHash string
}

func FingerprintOf(p Post) Fingerprint {
	sum := sha256.Sum256([]byte(p.Content))
	return Fingerprint{
		PostID:      p.ID,
		UpdatedUnix: p.UpdatedAt.UnixNano(),
		ContentHash: hex.EncodeToString(sum[:]),
	}
}

func (f Fingerprint) Key() string {
	h := sha256.New()
	h.Write([]byte(f.PostID))
	h.Write([]byte(strconv.FormatInt(f.UpdatedUnix, 10)))
	h.Write([]byte(f.ContentHash))
	return hex.EncodeToString(h.Sum(nil))
}
