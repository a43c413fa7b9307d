package imdfile

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sbelectronics/multibus/imdtool/pkg/imd"
)

// GeometryUnused disables a geometry limit.
const GeometryUnused = 0xFF

// defaultVersion replaces an empty or "Unknown" version string when
// the header line is re-emitted.
const defaultVersion = "1.19"

// ImageFile is an IMD file held entirely in memory. Every mutation is
// persisted to the backing file before it returns. An ImageFile owns
// its file handle exclusively; callers sharing one across goroutines
// must serialize access themselves.
type ImageFile struct {
	file *os.File
	path string

	writeProtected bool
	readOnlyOpen   bool

	headerInfo imd.HeaderInfo
	comment    []byte
	tracks     []*imd.Track

	maxCyl  uint8
	maxHead uint8
	maxSpt  uint8

	truncateWarn error
}

// Open opens an IMD file and loads the header, comment and every
// track into memory. A read-only open write-protects the image and
// the protection cannot be cleared.
func Open(path string, readOnly bool) (*ImageFile, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotOpen, err)
	}

	img := &ImageFile{
		file:           f,
		path:           path,
		readOnlyOpen:   readOnly,
		writeProtected: readOnly,
		maxCyl:         GeometryUnused,
		maxHead:        GeometryUnused,
		maxSpt:         GeometryUnused,
	}

	hi, err := imd.ReadFileHeader(f)
	if err != nil {
		f.Close()
		return nil, mapCodecErr(err)
	}
	img.headerInfo = hi

	comment, err := imd.ReadCommentBlock(f)
	if err != nil {
		f.Close()
		return nil, mapCodecErr(err)
	}
	img.comment = comment

	for {
		t, err := imd.LoadTrack(f, imd.FillByteDefault)
		if err != nil {
			f.Close()
			return nil, mapCodecErr(err)
		}
		if t == nil {
			break // clean EOF
		}
		img.tracks = append(img.tracks, t)
	}

	return img, nil
}

// Close releases the image: track data, comment and the file handle.
// The image must not be used afterwards.
func (img *ImageFile) Close() error {
	if img.file == nil {
		return nil
	}
	err := img.file.Close()
	img.file = nil
	img.tracks = nil
	img.comment = nil
	return err
}

// Path returns the path the image was opened from.
func (img *ImageFile) Path() string {
	return img.path
}

// SetGeometry sets the cylinder/head/sectors-per-track limits used to
// validate sector and track operations. GeometryUnused disables a
// limit.
func (img *ImageFile) SetGeometry(maxCyl, maxHead, maxSpt uint8) {
	img.maxCyl = maxCyl
	img.maxHead = maxHead
	img.maxSpt = maxSpt
}

// Geometry returns the current geometry limits.
func (img *ImageFile) Geometry() (maxCyl, maxHead, maxSpt uint8) {
	return img.maxCyl, img.maxHead, img.maxSpt
}

// SetWriteProtect changes the write-protection state. Protection
// cannot be cleared on an image that was opened read-only.
func (img *ImageFile) SetWriteProtect(protect bool) error {
	if !protect && img.readOnlyOpen {
		return fmt.Errorf("%w: image opened read-only", ErrWriteProtected)
	}
	img.writeProtected = protect
	return nil
}

// WriteProtected reports the current write-protection state.
func (img *ImageFile) WriteProtected() bool {
	return img.writeProtected
}

// HeaderInfo returns the parsed header line info.
func (img *ImageFile) HeaderInfo() imd.HeaderInfo {
	return img.headerInfo
}

// Comment returns the comment block, without the 0x1A terminator.
func (img *ImageFile) Comment() []byte {
	return img.comment
}

// NumTracks returns the number of loaded tracks.
func (img *ImageFile) NumTracks() int {
	return len(img.tracks)
}

// TrackInfo returns the track at index, or nil if the index is out of
// range. The returned track is live image state; mutate it through
// WriteSector/WriteTrack, not directly.
func (img *ImageFile) TrackInfo(index int) *imd.Track {
	if index < 0 || index >= len(img.tracks) {
		return nil
	}
	return img.tracks[index]
}

// FindTrackByCH returns the index of the track at (cyl, head).
func (img *ImageFile) FindTrackByCH(cyl, head uint8) (int, error) {
	if idx := img.findTrack(cyl, head); idx >= 0 {
		return idx, nil
	}
	return 0, fmt.Errorf("%w: track C%d H%d", ErrNotFound, cyl, head)
}

func (img *ImageFile) findTrack(cyl, head uint8) int {
	for i, t := range img.tracks {
		if t.Cyl == cyl && t.Head == head {
			return i
		}
	}
	return -1
}

// insertionIndex returns where a track at (cyl, head) belongs to keep
// the track list ordered by (cyl, head).
func (img *ImageFile) insertionIndex(cyl, head uint8) int {
	return sort.Search(len(img.tracks), func(i int) bool {
		t := img.tracks[i]
		return t.Cyl > cyl || (t.Cyl == cyl && t.Head >= head)
	})
}

// checkGeometryCH validates a cylinder/head pair against the limits.
func (img *ImageFile) checkGeometryCH(cyl, head uint8) error {
	if img.maxCyl != GeometryUnused && cyl > img.maxCyl {
		return fmt.Errorf("%w: cylinder %d > %d", ErrGeometry, cyl, img.maxCyl)
	}
	if img.maxHead != GeometryUnused && head > img.maxHead {
		return fmt.Errorf("%w: head %d > %d", ErrGeometry, head, img.maxHead)
	}
	return nil
}

// checkGeometrySector validates a logical sector ID against the
// sectors-per-track limit. ID 0 is never rejected; some formats number
// from zero.
func (img *ImageFile) checkGeometrySector(logicalID uint8) error {
	if img.maxSpt != GeometryUnused && logicalID > img.maxSpt && logicalID != 0 {
		return fmt.Errorf("%w: sector %d > %d", ErrGeometry, logicalID, img.maxSpt)
	}
	return nil
}

// rewriteFile rewrites the whole backing file from the in-memory
// image: header, comment, then every track. The track at modifiedIdx
// is written with opts, all others with defaults. After a successful
// rewrite the file is truncated to the new length; a failure to
// truncate is not fatal (the data is correct, stale bytes may trail)
// and is reported through TruncateWarning.
func (img *ImageFile) rewriteFile(modifiedIdx int, opts *imd.WriteOpts) error {
	if img.file == nil {
		return fmt.Errorf("%w: image closed", ErrInvalidArgument)
	}

	if _, err := img.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	version := img.headerInfo.Version
	if version == "" || version == "Unknown" {
		version = defaultVersion
	}
	if err := imd.WriteFileHeader(img.file, version); err != nil {
		return mapCodecErr(err)
	}
	if err := imd.WriteCommentBlock(img.file, img.comment); err != nil {
		return mapCodecErr(err)
	}

	defaults := imd.DefaultWriteOpts()
	for i, t := range img.tracks {
		use := &defaults
		if i == modifiedIdx && opts != nil {
			use = opts
		}
		if err := t.WriteIMD(img.file, use); err != nil {
			return mapCodecErr(err)
		}
	}

	img.truncateWarn = nil
	pos, err := img.file.Seek(0, io.SeekCurrent)
	if err != nil {
		img.truncateWarn = fmt.Errorf("%w: %v", ErrIO, err)
		return nil
	}
	if err := img.file.Truncate(pos); err != nil {
		img.truncateWarn = fmt.Errorf("%w: truncate: %v", ErrIO, err)
	}
	return nil
}

// TruncateWarning returns the non-fatal truncate failure from the
// last rewrite, if any. The on-disk image is valid either way; stale
// bytes may remain past its end.
func (img *ImageFile) TruncateWarning() error {
	return img.truncateWarn
}
