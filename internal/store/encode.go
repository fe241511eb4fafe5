package store

import (
	"encoding/binary"
	"time"
)

// key = invTime(8) + 0x00 + id, so a forward cursor walks newest first.
func timeKey(t time.Time, id string) []byte {
	buf := make([]byte, 0, 8+1+len(id))
	buf = binary.BigEndian.AppendUint64(buf, ^uint64(t.UnixNano()))
	buf = append(buf, 0x00)
	buf = append(buf, id...)
	return buf
}

func idFromTimeKey(k []byte) string {
	if len(k) < 8+2 || k[8] != 0x00 {
		return ""
	}
	return string(k[9:])
}

func encodeCount(n uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), n)
}

func decodeCount(v []byte) uint64 {
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}
