package imd

import (
	"fmt"
	"io"
)

/* Compression handling for WriteOpts */
const (
	CompressionAsRead          = 0 // uniform sectors written compressed, as on read
	CompressionForceCompress   = 1 // compress every uniform sector
	CompressionForceDecompress = 2 // write everything as normal data
)

/* Interleave selectors for WriteOpts. Values 1..n-1 are literal factors. */
const (
	InterleaveAsRead    = 0   // keep the physical order from the track structure
	InterleaveBestGuess = 255 // estimate the factor and apply it before writing
)

// WriteOpts controls the track write pipeline: sector compression,
// DAM/error flag stripping, mode translation and interleaving.
//
// Note that under CompressionAsRead a sector whose data is uniform is
// written compressed even if it was stored normal in the source file.
type WriteOpts struct {
	CompressionMode  int
	ForceNonBad      bool // strip data-error flags
	ForceNonDeleted  bool // strip deleted-data address marks
	TMode            [NumModes]uint8
	InterleaveFactor int
}

// DefaultWriteOpts returns options that reproduce the track as read:
// as-read compression, flags kept, identity mode translation, no
// reinterleave.
func DefaultWriteOpts() WriteOpts {
	return WriteOpts{
		CompressionMode:  CompressionAsRead,
		TMode:            [NumModes]uint8{0, 1, 2, 3, 4, 5},
		InterleaveFactor: InterleaveAsRead,
	}
}

// finalSectorFlag derives the sector data record byte to write from
// the sector's original flag, its current data and the write options.
// Unavailable sectors stay unavailable.
func finalSectorFlag(orig uint8, data []byte, opts *WriteOpts) uint8 {
	if orig == SDRUnavailable {
		return SDRUnavailable
	}
	uniform, _ := IsUniform(data)
	compressed := uniform && opts.CompressionMode != CompressionForceDecompress
	dam := SDRHasDAM(orig) && !opts.ForceNonDeleted
	dataErr := SDRHasErr(orig) && !opts.ForceNonBad
	return ComposeSDR(compressed, dam, dataErr)
}

// writeTarget resolves the interleave option, returning the track to
// emit. The receiver is never modified: when reordering is needed the
// work happens on a copy.
func (t *Track) writeTarget(opts *WriteOpts) (*Track, error) {
	if opts.InterleaveFactor == InterleaveAsRead || t.NumSectors < 2 {
		return t, nil
	}
	out := t.clone()
	factor := opts.InterleaveFactor
	if factor == InterleaveBestGuess {
		factor = out.BestInterleave()
	}
	if err := out.ApplyInterleave(factor); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteIMD emits the track as an IMD track record: header, maps in
// declared order, then one sector data record per sector with flags
// re-derived from the current data and opts.
func (t *Track) WriteIMD(w io.Writer, opts *WriteOpts) error {
	if opts == nil {
		return fmt.Errorf("%w: nil write options", ErrInvalidArgument)
	}
	if !t.Loaded {
		return fmt.Errorf("%w: track not loaded", ErrInvalidArgument)
	}

	out, err := t.writeTarget(opts)
	if err != nil {
		return err
	}

	mode := out.Mode
	if int(mode) < NumModes {
		mode = opts.TMode[mode]
	}

	n := int(out.NumSectors)
	hdr := []byte{mode, out.Cyl, out.Head | out.Hflag, out.NumSectors, out.SectorSizeCode}
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("%w: track header: %v", ErrWrite, err)
	}

	if n > 0 {
		if _, err := w.Write(out.Smap); err != nil {
			return fmt.Errorf("%w: sector map: %v", ErrWrite, err)
		}
		if out.Hflag&HFlagCmapPresent != 0 {
			if _, err := w.Write(out.Cmap); err != nil {
				return fmt.Errorf("%w: cylinder map: %v", ErrWrite, err)
			}
		}
		if out.Hflag&HFlagHmapPresent != 0 {
			if _, err := w.Write(out.Hmap); err != nil {
				return fmt.Errorf("%w: head map: %v", ErrWrite, err)
			}
		}
	}

	for i := 0; i < n; i++ {
		sector := out.SectorData(i)
		flag := finalSectorFlag(out.Sflag[i], sector, opts)
		if _, err := w.Write([]byte{flag}); err != nil {
			return fmt.Errorf("%w: sector flag: %v", ErrWrite, err)
		}
		if !SDRHasData(flag) {
			continue
		}
		if SDRIsCompressed(flag) {
			if _, err := w.Write(sector[:1]); err != nil {
				return fmt.Errorf("%w: sector fill byte: %v", ErrWrite, err)
			}
		} else {
			if _, err := w.Write(sector); err != nil {
				return fmt.Errorf("%w: sector data: %v", ErrWrite, err)
			}
		}
	}
	return nil
}

// WriteBin emits the raw sector data of the track, optionally
// reordered by the interleave option, with no IMD framing. Useful for
// flattening an image to a plain binary.
func (t *Track) WriteBin(w io.Writer, opts *WriteOpts) error {
	if opts == nil {
		return fmt.Errorf("%w: nil write options", ErrInvalidArgument)
	}
	if !t.Loaded {
		return fmt.Errorf("%w: track not loaded", ErrInvalidArgument)
	}
	if t.NumSectors == 0 {
		return nil
	}
	if len(t.Data) == 0 {
		return fmt.Errorf("%w: track has sectors but no data", ErrInvalidArgument)
	}

	out, err := t.writeTarget(opts)
	if err != nil {
		return err
	}
	if _, err := w.Write(out.Data); err != nil {
		return fmt.Errorf("%w: track data: %v", ErrWrite, err)
	}
	return nil
}
