package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Trade request rejections. No state is mutated on these paths.
	ErrInvalidTarget     = "E_INVALID_TARGET"
	ErrTargetUnreachable = "E_TARGET_UNREACHABLE"
	ErrOutOfRange        = "E_OUT_OF_RANGE"
	ErrAlreadyInSession  = "E_ALREADY_IN_SESSION"
	ErrDuplicateRequest  = "E_DUPLICATE_REQUEST"
	ErrRequesterBusy     = "E_REQUESTER_BUSY"
	ErrTargetBusy        = "E_TARGET_BUSY"
	ErrRateLimit         = "E_RATE_LIMIT"

	// Generic action layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrStale      = "E_STALE"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrInvalidTarget:     {},
	ErrTargetUnreachable: {},
	ErrOutOfRange:        {},
	ErrAlreadyInSession:  {},
	ErrDuplicateRequest:  {},
	ErrRequesterBusy:     {},
	ErrTargetBusy:        {},
	ErrRateLimit:         {},
	ErrBadRequest:        {},
	ErrStale:             {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
