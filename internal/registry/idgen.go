package registry

import (
	"crypto/rand"
	"math/big"
)

// roomIDChars excludes visually ambiguous characters (no I/O/0/1).
const roomIDChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// roomIDLength of 8 gives enough entropy to avoid collisions among
// concurrently live rooms without producing an unwieldy URL segment.
const roomIDLength = 8

func generateRoomID() string {
	b := make([]byte, roomIDLength)
	for i := range b {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(roomIDChars))))
		b[i] = roomIDChars[idx.Int64()]
	}
	return string(b)
}
