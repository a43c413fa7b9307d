package imdchk

import (
	"fmt"
	"io"
	"os"

	"github.com/sbelectronics/multibus/imdtool/pkg/imd"
)

/* Check bits. The default error mask (DefaultErrorMask) treats the
   structural checks as fatal and the sequence and flag observations
   as warnings. */
const (
	CheckHeader       = 0x00000001 // invalid header line
	CheckCommentTerm  = 0x00000002 // missing comment terminator
	CheckTrackRead    = 0x00000004 // track read failure
	CheckOffset       = 0x00000008 // stream offset query failure
	CheckConCyl       = 0x00000010 // cylinder constraint violation
	CheckConHead      = 0x00000020 // head constraint violation
	CheckConSectors   = 0x00000040 // sector count constraint violation
	CheckSeqCylDec    = 0x00000080 // cylinder sequence decrease
	CheckSeqHeadOrder = 0x00000100 // head sequence out of order
	CheckDupeSID      = 0x00000200 // duplicate sector ID in a track
	CheckInvSflag     = 0x00000400 // invalid sector flag value (>0x08)
	CheckSflagDataErr = 0x00000800 // data error flag seen
	CheckSflagDelDAM  = 0x00001000 // deleted address mark seen
	CheckDiffMaxCyl   = 0x00002000 // max cylinder differs between sides
)

// DefaultErrorMask marks the structural failures fatal and leaves the
// sequence/flag observations as warnings.
const DefaultErrorMask = CheckHeader | CheckCommentTerm | CheckTrackRead |
	CheckOffset | CheckConCyl | CheckConHead | CheckConSectors |
	CheckDupeSID | CheckInvSflag

// Options selects which check failures abort the scan and carries the
// optional geometry constraints. A constraint of -1 is disabled.
type Options struct {
	ErrorMask  uint32
	MaxCyl     int
	Head       int // required head, 0 or 1
	MaxSectors int
}

// DefaultOptions returns the default mask with all constraints
// disabled.
func DefaultOptions() Options {
	return Options{
		ErrorMask:  DefaultErrorMask,
		MaxCyl:     -1,
		Head:       -1,
		MaxSectors: -1,
	}
}

// Results accumulates the outcome of a scan: the bitmask of failed
// checks plus per-file statistics.
type Results struct {
	FailureMask uint32

	TotalSectors       int64
	UnavailableSectors int64
	DeletedSectors     int64
	CompressedSectors  int64
	DataErrorSectors   int64

	TracksRead         int
	MaxCylSide0        int
	MaxCylSide1        int
	MaxHeadSeen        int
	DetectedInterleave int // -1 not determined, 0 unknown, >0 factor
}

// Errors reports whether any failure selected as fatal by the mask was
// recorded.
func (r *Results) Errors(opts *Options) bool {
	return r.FailureMask&opts.ErrorMask != 0
}

// determineInterleave makes a quick positional interleave estimate
// from a sector map: the physical distance from the first sector to
// its logical successor. Distinct from Track.BestInterleave, which
// votes over all adjacent pairs; this matches what a formatting tool
// would report for a regular layout.
func determineInterleave(smap []uint8) int {
	n := len(smap)
	if n < 2 {
		return 1
	}
	first := smap[0]
	next := first + 1
	if first == 0 {
		next = 1
	}
	for i := 1; i < n; i++ {
		if smap[i] == next {
			return i
		}
	}
	// No direct successor; look for the wrap-around ID.
	var wrap uint8
	switch {
	case first > 1:
		min := uint8(255)
		for _, id := range smap {
			if id < min {
				min = id
			}
		}
		wrap = min
	case first == 0:
		wrap = 0
	default:
		wrap = 1
	}
	for i := 1; i < n; i++ {
		if smap[i] == wrap {
			return i
		}
	}
	return 0
}

// checkSmap records duplicate sector IDs within one track.
func checkSmap(t *imd.Track, results *Results) {
	if t.NumSectors <= 1 {
		return
	}
	var seen [256]bool
	for _, id := range t.Smap {
		if seen[id] {
			results.FailureMask |= CheckDupeSID
		} else {
			seen[id] = true
		}
	}
}

// checkSflags validates the sector flags of one track and updates the
// sector statistics.
func checkSflags(t *imd.Track, results *Results) {
	results.TotalSectors += int64(t.NumSectors)
	dataErr := false
	deleted := false

	for _, flag := range t.Sflag {
		if flag > imd.SDRCompressedDelErr {
			results.FailureMask |= CheckInvSflag
		}
		if !imd.SDRHasData(flag) {
			results.UnavailableSectors++
			continue
		}
		if imd.SDRIsCompressed(flag) {
			results.CompressedSectors++
		}
		if imd.SDRHasDAM(flag) {
			results.DeletedSectors++
			deleted = true
		}
		if imd.SDRHasErr(flag) {
			results.DataErrorSectors++
			dataErr = true
		}
	}

	if dataErr {
		results.FailureMask |= CheckSflagDataErr
	}
	if deleted {
		results.FailureMask |= CheckSflagDelDAM
	}
}

// CheckFile scans an IMD file in one pass and reports the failures and
// statistics. Only track headers and flags are read; sector data is
// skipped. Failures selected by opts.ErrorMask short-circuit the scan,
// the rest are recorded and the scan continues. The returned error is
// non-nil only when the file cannot be opened or the results are
// unusable.
func CheckFile(path string, opts *Options) (*Results, error) {
	if opts == nil {
		return nil, fmt.Errorf("nil options")
	}

	results := &Results{
		MaxCylSide0:        -1,
		MaxCylSide1:        -1,
		MaxHeadSeen:        -1,
		DetectedInterleave: -1,
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := imd.ReadFileHeader(f); err != nil {
		results.FailureMask |= CheckHeader
		if opts.ErrorMask&CheckHeader != 0 {
			return results, nil
		}
	}
	if err := imd.SkipCommentBlock(f); err != nil {
		results.FailureMask |= CheckCommentTerm
		if opts.ErrorMask&CheckCommentTerm != 0 {
			return results, nil
		}
	}

	var lastCyl uint8
	lastHead := uint8(1)
	firstTrack := true

	for {
		if _, err := f.Seek(0, io.SeekCurrent); err != nil {
			results.FailureMask |= CheckOffset
			break
		}

		t, err := imd.ReadTrackHeaderAndFlags(f)
		if err != nil {
			// The reader restores the stream position on failure, so
			// there is no way to resync past a bad record.
			results.FailureMask |= CheckTrackRead
			break
		}
		if t == nil {
			break // clean EOF
		}

		results.TracksRead++

		constraintFailed := false
		if opts.MaxCyl != -1 && int(t.Cyl) > opts.MaxCyl {
			results.FailureMask |= CheckConCyl
			constraintFailed = true
		}
		if opts.Head != -1 && int(t.Head) != opts.Head {
			results.FailureMask |= CheckConHead
			constraintFailed = true
		}
		if opts.MaxSectors != -1 && int(t.NumSectors) > opts.MaxSectors {
			results.FailureMask |= CheckConSectors
			constraintFailed = true
		}
		if constraintFailed && opts.ErrorMask&results.FailureMask&(CheckConCyl|CheckConHead|CheckConSectors) != 0 {
			break
		}

		if t.Head == 0 && int(t.Cyl) > results.MaxCylSide0 {
			results.MaxCylSide0 = int(t.Cyl)
		}
		if t.Head == 1 && int(t.Cyl) > results.MaxCylSide1 {
			results.MaxCylSide1 = int(t.Cyl)
		}
		if int(t.Head) > results.MaxHeadSeen {
			results.MaxHeadSeen = int(t.Head)
		}
		if results.DetectedInterleave == -1 && t.NumSectors > 0 {
			results.DetectedInterleave = determineInterleave(t.Smap)
		}

		if !firstTrack {
			if t.Cyl < lastCyl {
				results.FailureMask |= CheckSeqCylDec
			}
			if t.Cyl == lastCyl && t.Head <= lastHead && !(t.Head == 0 && lastHead > 0) {
				results.FailureMask |= CheckSeqHeadOrder
			}
			if opts.ErrorMask&(CheckSeqCylDec|CheckSeqHeadOrder)&results.FailureMask != 0 {
				break
			}
		}
		lastCyl, lastHead, firstTrack = t.Cyl, t.Head, false

		checkSmap(t, results)
		if opts.ErrorMask&CheckDupeSID&results.FailureMask != 0 {
			break
		}

		checkSflags(t, results)
	}

	if results.MaxHeadSeen > 0 &&
		results.MaxCylSide0 != -1 && results.MaxCylSide1 != -1 &&
		results.MaxCylSide0 != results.MaxCylSide1 {
		results.FailureMask |= CheckDiffMaxCyl
	}

	return results, nil
}
