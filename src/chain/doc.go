// Package chain defines the data that Ola nodes agree upon: signed
// transactions, blocks, and the genesis document.
//
// Hashes are SHA256 digests of the canonical JSON encoding of the hashed
// structure (ugorji codec with Canonical set), and are displayed with the 0X
// uppercase hex convention of the common package. Signatures are 65-byte
// recoverable secp256k1 signatures over those hashes.
package chain
