package custody

import (
	"fmt"

	"github.com/custodia-io/custodia/internal/hashchain"
)

// Action is a custody-affecting action kind. The set is extensible: unknown
// kinds are accepted and recorded as-is, but the kinds below carry required
// metadata that is validated before anything is committed.
type Action string

const (
	ActionUpload        Action = "UPLOAD"
	ActionView          Action = "VIEW"
	ActionTransfer      Action = "TRANSFER"
	ActionVersionAdded  Action = "VERSION_ADDED"
	ActionVerified      Action = "VERIFIED"
	ActionAccessGranted Action = "ACCESS_GRANTED"
	ActionAccessDenied  Action = "ACCESS_DENIED"
	ActionDisposed      Action = "DISPOSED"
)

// requiredMetadata lists the metadata keys each recognised action must carry.
// A TRANSFER without a destination actor is meaningless for chain of custody,
// so it is rejected before a ledger row is ever built.
var requiredMetadata = map[Action][]string{
	ActionUpload:        {"content_hash"},
	ActionTransfer:      {"to_actor"},
	ActionVersionAdded:  {"version", "content_hash"},
	ActionVerified:      {"status"},
	ActionAccessGranted: {"request_id"},
	ActionAccessDenied:  {"reason"},
	ActionDisposed:      {"method"},
}

// validateMetadata checks the per-action required keys. Missing or empty
// values fail; extra keys are always permitted.
func validateMetadata(action Action, meta hashchain.Metadata) error {
	for _, key := range requiredMetadata[action] {
		if meta[key] == "" {
			return fmt.Errorf("%w: %s requires metadata key %q", ErrInvalidAction, action, key)
		}
	}
	return nil
}
