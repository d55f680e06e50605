package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrPayloadTooLarge = "E_PAYLOAD_TOO_LARGE"

	// Arbitration.
	ErrBusy   = "E_BUSY"
	ErrBackup = "E_BACKUP"
	ErrStale  = "E_STALE"

	// Edit setup.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoSelection   = "E_NO_SELECTION"
	ErrNothingToUndo = "E_NOTHING_TO_UNDO"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrRateLimit:       {},
	ErrPayloadTooLarge: {},
	ErrBusy:            {},
	ErrBackup:          {},
	ErrStale:           {},
	ErrBadRequest:      {},
	ErrNoSelection:     {},
	ErrNothingToUndo:   {},
	ErrInvalidTarget:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
