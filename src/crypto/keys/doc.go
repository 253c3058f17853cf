// Package keys implements the public key cryptography used by Ola nodes.
//
// Every account and every validator owns a secp256k1 key-pair. Transactions
// and blocks carry 65-byte recoverable signatures (R || S || V), so the
// signer's public key, and therefore its address, can be recovered from the
// signature and the signed hash alone.
//
// Addresses follow the Ethereum convention: the last 20 bytes of the Keccak256
// hash of the uncompressed public key (without its 0x04 prefix), rendered as
// "0x" followed by 40 lowercase hex characters.
package keys
