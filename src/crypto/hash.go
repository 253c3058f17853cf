package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of left
// and right data.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	var hasher = sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// SimpleHashFromHashes computes a binary merkle root over a list of hashes.
// An odd node at any level is paired with itself. The root of an empty list is
// the SHA256 of nothing.
func SimpleHashFromHashes(hashes [][]byte) []byte {
	switch len(hashes) {
	case 0:
		return SHA256(nil)
	case 1:
		return hashes[0]
	}

	level := hashes
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, SimpleHashFromTwoHashes(level[i], right))
		}
		level = next
	}
	return level[0]
}
