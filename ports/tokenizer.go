package ports

import "github.com/decleanup/dcu/core"

// Tokenizer converts between session records and signed bearer tokens.
// The token proves integrity of its claims; revocability comes from the
// SessionStore record looked up by the session ID.
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
