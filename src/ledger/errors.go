package ledger

import (
	"errors"
	"fmt"
)

// ErrKnownBlock is returned when adding a block that is already in the arena.
// Adding the same block twice is otherwise a no-op.
var ErrKnownBlock = errors.New("known block")

// ConsensusFault reports a violated ledger invariant, such as a previously
// accepted block that no longer replays. It is raised with panic because the
// local chain can no longer be trusted.
type ConsensusFault struct {
	Reason string
}

// Error ...
func (f *ConsensusFault) Error() string {
	return fmt.Sprintf("consensus fault: %s", f.Reason)
}
