package reliability

import "time"

const (
	// stalenessWindow bounds backlog replay after a (re)subscription.
	stalenessWindow = 48 * time.Hour
	// jitterBuffer tolerates the +-15 minute timestamp randomization
	// applied at send time.
	jitterBuffer = 15 * time.Minute
)

// MaxEventAge is the oldest a created_at may be before the event is
// dropped unprocessed.
const MaxEventAge = stalenessWindow + jitterBuffer

// FreshEnough reports whether an event timestamp is recent enough to
// process. Stale events are counted, never alarmed.
func FreshEnough(createdAt int64, now time.Time) bool {
	return now.Sub(time.Unix(createdAt, 0)) <= MaxEventAge
}
