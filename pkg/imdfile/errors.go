package imdfile

import (
	"errors"
	"fmt"

	"github.com/sbelectronics/multibus/imdtool/pkg/imd"
)

var (
	ErrCannotOpen      = errors.New("cannot open image file")
	ErrWriteProtected  = errors.New("image is write-protected")
	ErrGeometry        = errors.New("exceeds geometry limits")
	ErrNotFound        = errors.New("track or sector not found")
	ErrIO              = errors.New("file I/O error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSectorSize      = errors.New("invalid sector size")
	ErrBufferSize      = errors.New("buffer too small")
	ErrUnavailable     = errors.New("sector is unavailable")
	ErrImageState      = errors.New("internal image state error")
)

// mapCodecErr translates a pkg/imd error into this package's error
// kinds. The translation happens once, here, so codec kinds never leak
// to callers of the image layer.
func mapCodecErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, imd.ErrRead), errors.Is(err, imd.ErrWrite),
		errors.Is(err, imd.ErrSeek), errors.Is(err, imd.ErrFormat):
		return fmt.Errorf("%w: %v", ErrIO, err)
	case errors.Is(err, imd.ErrInvalidArgument):
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	case errors.Is(err, imd.ErrBufferTooSmall):
		return fmt.Errorf("%w: %v", ErrBufferSize, err)
	case errors.Is(err, imd.ErrSectorNotFound), errors.Is(err, imd.ErrTrackNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, imd.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, imd.ErrSizeMismatch):
		return fmt.Errorf("%w: %v", ErrSectorSize, err)
	default:
		return fmt.Errorf("%w: %v", ErrImageState, err)
	}
}
