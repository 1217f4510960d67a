package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// dedupKey builds the fingerprint used to detect duplicate redeliveries of
// the same business message. MD5 is used purely as a fast, well-distributed
// non-cryptographic fingerprint over a short ASCII key, matching the
// original gateway's own dedup hash (msg_id:sequence:player_id); nothing
// here is used for integrity or security purposes, so a cryptographic
// hash is unnecessary weight.
func dedupKey(msgID int32, sequence, playerID string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d:%s:%s", msgID, sequence, playerID)))
	return hex.EncodeToString(sum[:])[:16]
}
