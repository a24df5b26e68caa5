package sidetree

import "errors"

// Resolver errors, distinguished per spec §4.2 so callers can tell an
// absent DID from a transport failure.
var (
	ErrNotFound           = errors.New("sidetree: did not found")
	ErrTransport          = errors.New("sidetree: transport error")
	ErrInvalid            = errors.New("sidetree: malformed response")
	ErrPublicKeyNotFound  = errors.New("sidetree: public key not found")
	ErrAmbiguousPublicKey = errors.New("sidetree: multiple entries for public key id")
)
