package protocol

import "errors"

var (
	ErrAddress  = errors.New("verse: no address set")
	ErrNode     = errors.New("verse: node error")
	ErrServer   = errors.New("verse: server error")
	ErrArgument = errors.New("verse: invalid argument")
	ErrSession  = errors.New("verse: invalid session transition")
)
