package protocol

// Error is a typed error for the protocol layer.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrNotRunning is returned when Send is attempted on a stopped protocol.
	ErrNotRunning Error = "protocol is not running"
	// ErrDuplicate is returned when a name is registered twice. Silent
	// overwrite would orphan the previous instance without stopping it.
	ErrDuplicate Error = "protocol name already registered"
)
