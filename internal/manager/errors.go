package manager

import "errors"

// Errors
var (
	ErrConnectionFailed  = errors.New("component connection failed")
	ErrSubdomainNotFound = errors.New("subdomain not found")
	ErrUnknownComponent  = errors.New("unknown component")
	ErrInvalidComponent  = errors.New("invalid component")
	ErrInvalidSubdomain  = errors.New("invalid subdomain")
	ErrInvalidDomain     = errors.New("invalid domain")
	ErrInvalidPacket     = errors.New("invalid packet")
	ErrSubdomainInUse    = errors.New("subdomain already registered")
	ErrComponentInUse    = errors.New("component already registered")
	ErrManagerClosed     = errors.New("manager closed")
)
