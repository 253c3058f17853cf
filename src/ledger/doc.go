// Package ledger implements the state machine that tracks the canonical chain.
//
// Every block that passes validation is kept in an arena indexed by hash,
// together with its fork-choice score. Exactly one chain of blocks, from
// genesis to the head, is canonical at any time. Adding a block either extends
// the head, switches the canonical chain to a better fork, or records a side
// block; a block that fails validation never enters the arena and never
// changes the head.
//
// Mutations are serialised. Readers work on an immutable view (head,
// canonical index, head state) that is replaced atomically after each
// mutation, so they never observe a partially applied block.
package ledger
