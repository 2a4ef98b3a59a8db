package registry

import "fmt"

// Protocol error codes sent to clients in error messages
const (
	CodeGameNotFound        = "GAME_NOT_FOUND"
	CodeNotAuthenticated    = "NOT_AUTHENTICATED"
	CodeDuplicateIdentity   = "DUPLICATE_IDENTITY"
	CodeInvalidTimeCategory = "INVALID_TIME_CATEGORY"
	CodeInvalidMessage      = "INVALID_MESSAGE"
	CodeAlreadyInGame       = "ALREADY_IN_GAME"
	CodeActionRejected      = "ACTION_REJECTED"
)

// ProtocolError is a request that is well formed but cannot be honoured in
// the current session state. The connection stays open.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func gameNotFound(gameID string) *ProtocolError {
	return &ProtocolError{Code: CodeGameNotFound, Message: fmt.Sprintf("game %s not found", gameID)}
}
