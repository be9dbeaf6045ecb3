package allowance

import "fmt"

// Error kinds per the propagation policy: the per-block pass aborts on fatal
// kinds (missing config, arithmetic) and logs-and-continues on advisory ones
// (feed unavailable, idempotent no-ops). Governance calls surface errors
// synchronously to the caller.
var (
	ErrMissingConfig  = fmt.Errorf("missing configuration")
	ErrZeroThreshold  = fmt.Errorf("minimum bonded threshold is zero")
	ErrArithmetic     = fmt.Errorf("arithmetic overflow")
	ErrReplayRejected = fmt.Errorf("submission failed replay gate")
	ErrFutureBlock    = fmt.Errorf("submission references a future block")
	ErrUnauthorized   = fmt.Errorf("caller is not a governance key")
)
