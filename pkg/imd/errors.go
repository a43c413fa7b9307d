package imd

import "errors"

var (
	ErrRead            = errors.New("read error")
	ErrWrite           = errors.New("write error")
	ErrSeek            = errors.New("seek error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFormat          = errors.New("invalid IMD format")
	ErrSectorNotFound  = errors.New("sector not found")
	ErrTrackNotFound   = errors.New("track not found")
	ErrUnavailable     = errors.New("sector data unavailable")
	ErrBufferTooSmall  = errors.New("buffer too small")
	ErrSizeMismatch    = errors.New("data size mismatch")
)
