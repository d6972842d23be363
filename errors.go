package rxflow

import "github.com/pkg/errors"

var (
	errNoKeys    = errors.New("SRTP master keys required for a secure session")
	errNoConn    = errors.New("no socket")
	errNotSecure = errors.New("session is not secure")
)
