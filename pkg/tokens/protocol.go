package tokens

// RequestKind selects the operation a forwarded request performs.
type RequestKind string

const (
	// KindAllocate allocates (or looks up) one token.
	KindAllocate RequestKind = "allocate"
	// KindList returns the whole token table.
	KindList RequestKind = "list"
)

// Request is sent from a replica's Forwarder to the primary's Responder.
// Session and Sequence order requests from one forwarder: the responder
// rejects a sequence lower than the last one it answered for the session.
type Request struct {
	Kind     RequestKind `json:"kind"`
	Name     string      `json:"name,omitempty"`
	Session  string      `json:"session"`
	Sequence uint64      `json:"sequence"`
}

// Response answers one Request. Error is set instead of the payload when the
// primary could not serve it.
type Response struct {
	ID       int            `json:"id,omitempty"`
	Tokens   map[string]int `json:"tokens,omitempty"`
	Sequence uint64         `json:"sequence"`
	Error    string         `json:"error,omitempty"`
}
