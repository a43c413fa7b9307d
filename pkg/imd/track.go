package imd

import (
	"fmt"
	"io"
)

// offsetGuard remembers the stream position at construction and
// restores it on restore() unless disarmed. Every track reader arms
// one so that a failed parse leaves the stream where it started.
type offsetGuard struct {
	rs    io.Seeker
	pos   int64
	armed bool
}

func newOffsetGuard(rs io.Seeker) (*offsetGuard, error) {
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeek, err)
	}
	return &offsetGuard{rs: rs, pos: pos, armed: true}, nil
}

func (g *offsetGuard) disarm() {
	g.armed = false
}

func (g *offsetGuard) restore() {
	if g.armed {
		g.rs.Seek(g.pos, io.SeekStart)
	}
}

// readTrackMeta reads the fixed track header and the maps that are
// present in the file. It returns (nil, nil) on clean EOF at the
// record boundary. Absent cmap/hmap are left nil; Hflag records which
// were present.
func readTrackMeta(rs io.ReadSeeker) (*Track, error) {
	mode, err := readByte(rs)
	if err == io.EOF {
		return nil, nil // no more tracks
	}
	if err != nil {
		return nil, fmt.Errorf("%w: track header: %v", ErrRead, err)
	}

	var hdr [4]byte
	if _, err := io.ReadFull(rs, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated track header", ErrFormat)
	}
	t := &Track{
		Mode:           mode,
		Cyl:            hdr[0],
		Head:           hdr[1] & HFlagHeadMask,
		Hflag:          hdr[1] & HFlagMask,
		NumSectors:     hdr[2],
		SectorSizeCode: hdr[3],
	}

	if t.Mode >= NumModes {
		return nil, fmt.Errorf("%w: invalid mode %d", ErrFormat, t.Mode)
	}
	if t.Head > 1 {
		return nil, fmt.Errorf("%w: invalid head %d", ErrFormat, t.Head)
	}
	size, ok := SectorSizeFromCode(t.SectorSizeCode)
	if !ok {
		return nil, fmt.Errorf("%w: invalid sector size code %d", ErrFormat, t.SectorSizeCode)
	}
	t.SectorSize = size

	n := int(t.NumSectors)
	if n > 0 {
		t.Smap = make([]uint8, n)
		if _, err := io.ReadFull(rs, t.Smap); err != nil {
			return nil, fmt.Errorf("%w: truncated sector map", ErrFormat)
		}
		if t.Hflag&HFlagCmapPresent != 0 {
			t.Cmap = make([]uint8, n)
			if _, err := io.ReadFull(rs, t.Cmap); err != nil {
				return nil, fmt.Errorf("%w: truncated cylinder map", ErrFormat)
			}
		}
		if t.Hflag&HFlagHmapPresent != 0 {
			t.Hmap = make([]uint8, n)
			if _, err := io.ReadFull(rs, t.Hmap); err != nil {
				return nil, fmt.Errorf("%w: truncated head map", ErrFormat)
			}
		}
	}
	return t, nil
}

// fillDefaultMaps gives a loaded track its full parallel map set:
// cmap/hmap that were absent in the file default to the track's own
// cylinder and head.
func fillDefaultMaps(t *Track) {
	n := int(t.NumSectors)
	if t.Cmap == nil {
		t.Cmap = make([]uint8, n)
		for i := range t.Cmap {
			t.Cmap[i] = t.Cyl
		}
	}
	if t.Hmap == nil {
		t.Hmap = make([]uint8, n)
		for i := range t.Hmap {
			t.Hmap[i] = t.Head
		}
	}
}

// LoadTrack reads one full track record, materializing all sector
// data. Sectors marked unavailable are filled with fill; compressed
// sectors are expanded. Returns (nil, nil) on clean EOF at a record
// boundary. On any error the stream is restored to the track's start.
func LoadTrack(rs io.ReadSeeker, fill byte) (*Track, error) {
	guard, err := newOffsetGuard(rs)
	if err != nil {
		return nil, err
	}
	defer guard.restore()

	t, err := readTrackMeta(rs)
	if err != nil || t == nil {
		if t == nil && err == nil {
			guard.disarm()
		}
		return nil, err
	}
	fillDefaultMaps(t)

	n := int(t.NumSectors)
	t.Sflag = make([]uint8, n)
	t.Data = make([]byte, n*int(t.SectorSize))

	for i := 0; i < n; i++ {
		flag, err := readByte(rs)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated sector data record", ErrFormat)
		}
		t.Sflag[i] = flag
		sector := t.SectorData(i)

		switch {
		case flag == SDRUnavailable:
			for j := range sector {
				sector[j] = fill
			}
		case SDRHasData(flag) && SDRIsCompressed(flag):
			value, err := readByte(rs)
			if err != nil {
				return nil, fmt.Errorf("%w: truncated compressed sector", ErrFormat)
			}
			for j := range sector {
				sector[j] = value
			}
		case SDRHasData(flag):
			if _, err := io.ReadFull(rs, sector); err != nil {
				return nil, fmt.Errorf("%w: truncated sector data", ErrFormat)
			}
		default:
			return nil, fmt.Errorf("%w: unknown sector data record 0x%02X", ErrFormat, flag)
		}
	}

	t.Loaded = true
	guard.disarm()
	return t, nil
}

// skipSectorData advances past one sector data record's payload. end
// is the stream length; seeking is cheap but silently succeeds past
// EOF, so the resulting position is checked against it.
func skipSectorData(rs io.ReadSeeker, flag uint8, sectorSize uint32, end int64) error {
	var skip int64
	switch {
	case flag == SDRUnavailable:
		return nil
	case SDRHasData(flag) && SDRIsCompressed(flag):
		skip = 1
	case SDRHasData(flag):
		skip = int64(sectorSize)
	default:
		return fmt.Errorf("%w: unknown sector data record 0x%02X", ErrFormat, flag)
	}
	pos, err := rs.Seek(skip, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeek, err)
	}
	if pos > end {
		return fmt.Errorf("%w: truncated sector data", ErrFormat)
	}
	return nil
}

// readTrackSkeleton is the shared body of the two header-only
// readers. When keepFlags is set the per-sector flags are recorded in
// Sflag; data records are skipped either way and no data is allocated.
func readTrackSkeleton(rs io.ReadSeeker, keepFlags bool) (*Track, error) {
	guard, err := newOffsetGuard(rs)
	if err != nil {
		return nil, err
	}
	defer guard.restore()

	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeek, err)
	}
	if _, err := rs.Seek(guard.pos, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeek, err)
	}

	t, err := readTrackMeta(rs)
	if err != nil || t == nil {
		if t == nil && err == nil {
			guard.disarm()
		}
		return nil, err
	}

	n := int(t.NumSectors)
	if keepFlags {
		t.Sflag = make([]uint8, n)
	}
	for i := 0; i < n; i++ {
		flag, err := readByte(rs)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated sector data record", ErrFormat)
		}
		if keepFlags {
			t.Sflag[i] = flag
		}
		if err := skipSectorData(rs, flag, t.SectorSize, end); err != nil {
			return nil, err
		}
	}

	guard.disarm()
	return t, nil
}

// ReadTrackHeader reads only the track header and maps, skipping the
// sector data records without allocating. Returns (nil, nil) on clean
// EOF at a record boundary.
func ReadTrackHeader(rs io.ReadSeeker) (*Track, error) {
	return readTrackSkeleton(rs, false)
}

// ReadTrackHeaderAndFlags reads the track header, maps and per-sector
// flags, skipping the sector data itself. Returns (nil, nil) on clean
// EOF at a record boundary.
func ReadTrackHeaderAndFlags(rs io.ReadSeeker) (*Track, error) {
	return readTrackSkeleton(rs, true)
}

// TrackHasValidSectors scans the file for the track at (cyl, head) and
// reports whether it contains at least one sector whose data record is
// not unavailable. Deleted or errored sectors count as valid. The
// caller's stream position is preserved.
func TrackHasValidSectors(rs io.ReadSeeker, cyl, head uint8) (bool, error) {
	orig, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSeek, err)
	}
	defer rs.Seek(orig, io.SeekStart)

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("%w: %v", ErrSeek, err)
	}
	if _, err := ReadFileHeader(rs); err != nil {
		return false, err
	}
	if err := SkipCommentBlock(rs); err != nil {
		return false, err
	}

	for {
		t, err := ReadTrackHeaderAndFlags(rs)
		if err != nil {
			return false, err
		}
		if t == nil {
			return false, ErrTrackNotFound
		}
		if t.Cyl == cyl && t.Head == head {
			for _, flag := range t.Sflag {
				if flag != SDRUnavailable {
					return true, nil
				}
			}
			return false, nil
		}
	}
}
