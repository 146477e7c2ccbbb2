package users

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"github.com/verbalautomation/c3a/internal"
)

// internalHexDigest hashes identifier the same way the application registry
// hashes app names, giving user records the "user::H(identifier)" key
// schema.
func internalHexDigest(identifier string) string {
	sum := sha3.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// phcToWire packs an Argon2id PHC string into the wire {salt, hash} shape.
// The PHC string already encodes salt, parameters and hash together, so it
// is carried whole in the hash field; salt is left empty.
func phcToWire(phc string) (salt string, hash internal.HexBytes) {
	return "", internal.HexBytes(phc)
}

// wireToPHC recovers the PHC string packed by phcToWire.
func wireToPHC(_ string, hash internal.HexBytes) string {
	return string(hash)
}
