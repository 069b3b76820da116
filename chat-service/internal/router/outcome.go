package router

// Drop reasons.
const (
	ReasonUnknownConnection   = "unknown_connection"
	ReasonNotConnected        = "not_connected"
	ReasonGuardUnavailable    = "guard_unavailable"
	ReasonStoreUnavailable    = "store_unavailable"
	ReasonPresenceUnavailable = "presence_unavailable"
)

// Outcome is the result of an intent that passed validation. A dropped
// intent had no client-visible effect.
type Outcome struct {
	Delivered bool
	Reason    string
}

// Delivered is the outcome of an intent that took full effect.
var Delivered = Outcome{Delivered: true}

// Dropped returns a dropped outcome with reason.
func Dropped(reason string) Outcome {
	return Outcome{Reason: reason}
}

func (o Outcome) String() string {
	if o.Delivered {
		return "delivered"
	}
	return "dropped:" + o.Reason
}
