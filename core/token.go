package core

import "sync/atomic"

// Token is a queue-scoped liveness flag. The owning TaskQueue holds it for
// its lifetime and revokes it during Close; tasks stamped with the token
// skip their bodies once it is revoked. Revocation never interrupts a body
// that has already started.
type Token struct {
	alive atomic.Bool
}

func newToken() *Token {
	t := &Token{}
	t.alive.Store(true)
	return t
}

// Alive reports whether the owning queue still permits execution. A nil
// token reads as dead, matching a queue that no longer exists.
func (t *Token) Alive() bool {
	return t != nil && t.alive.Load()
}

func (t *Token) revoke() {
	if t != nil {
		t.alive.Store(false)
	}
}
