package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrIdentityChanged   = errors.New("identity changed")
	ErrMalformedFilename = errors.New("malformed filename")
	ErrMalformedSlug     = errors.New("malformed slug")
)
