package imd

const (
	MaxSectorsPerTrack = 256
	MaxSectorSize      = 8192
	FillByteDefault    = 0xE5
	CommentEOFMarker   = 0x1A
	NumModes           = 6
)

/* Recording modes. The mode is stored, not interpreted. */
const (
	ModeFM500  = 0 // 500 kbps FM
	ModeFM300  = 1 // 300 kbps FM
	ModeFM250  = 2 // 250 kbps FM
	ModeMFM500 = 3 // 500 kbps MFM
	ModeMFM300 = 4 // 300 kbps MFM
	ModeMFM250 = 5 // 250 kbps MFM
)

/* Head byte: head number in the low nibble, map-presence flags in the high nibble. */
const (
	HFlagHeadMask    = 0x0F
	HFlagCmapPresent = 0x80
	HFlagHmapPresent = 0x40
	HFlagMask        = 0xF0
)

/* Sector Data Record types */
const (
	SDRUnavailable      = 0x00 // could not be read, no data follows
	SDRNormal           = 0x01 // sector-size bytes follow
	SDRCompressed       = 0x02 // one fill byte follows
	SDRNormalDAM        = 0x03 // normal, deleted-data address mark
	SDRCompressedDAM    = 0x04 // compressed, deleted-data address mark
	SDRNormalErr        = 0x05 // normal, read with data error
	SDRCompressedErr    = 0x06 // compressed, read with data error
	SDRDeletedErr       = 0x07 // deleted, read with data error
	SDRCompressedDelErr = 0x08 // compressed, deleted, read with data error
)

// SDRHasData reports whether a sector data record carries data
// (normal or compressed).
func SDRHasData(flag uint8) bool {
	return flag >= SDRNormal && flag <= SDRCompressedDelErr
}

// SDRIsCompressed reports whether a sector data record is one of the
// compressed variants (0x02, 0x04, 0x06, 0x08).
func SDRIsCompressed(flag uint8) bool {
	return flag != 0 && flag&0x01 == 0
}

// SDRHasDAM reports whether the record carries a deleted-data address
// mark. Only meaningful for flags that carry data.
func SDRHasDAM(flag uint8) bool {
	return (flag-1)&0x02 != 0
}

// SDRHasErr reports whether the record was read with a data error.
// Only meaningful for flags that carry data.
func SDRHasErr(flag uint8) bool {
	return (flag-1)&0x04 != 0
}

// ComposeSDR builds a sector data record flag from its parts. The
// caller must only request compression for uniform data.
func ComposeSDR(compressed, dam, dataErr bool) uint8 {
	var flag uint8
	switch {
	case dam && dataErr:
		flag = SDRDeletedErr
	case dataErr:
		flag = SDRNormalErr
	case dam:
		flag = SDRNormalDAM
	default:
		flag = SDRNormal
	}
	if compressed {
		flag++
	}
	return flag
}

/* Sector size lookup table (bytes = 128 << code, codes 0-6) */
var sectorSizes = [...]uint32{128, 256, 512, 1024, 2048, 4096, 8192}

// SectorSizeFromCode returns the sector size in bytes for a size code,
// or false if the code is out of range.
func SectorSizeFromCode(code uint8) (uint32, bool) {
	if int(code) >= len(sectorSizes) {
		return 0, false
	}
	return sectorSizes[code], true
}

// SectorSizeCode returns the size code for a sector size in bytes, or
// false if the size is not one of the seven valid IMD sizes.
func SectorSizeCode(size uint32) (uint8, bool) {
	for i, s := range sectorSizes {
		if s == size {
			return uint8(i), true
		}
	}
	return 0, false
}

// SectorSizes returns the valid sector sizes in code order.
func SectorSizes() []uint32 {
	out := make([]uint32, len(sectorSizes))
	copy(out, sectorSizes[:])
	return out
}

// HeaderInfo is the parsed ASCII header line. The timestamp fields are
// zero when the line does not parse strictly or a field is out of
// calendar range; Version is "Unknown" when it cannot be extracted.
type HeaderInfo struct {
	Version string
	Day     int
	Month   int
	Year    int
	Hour    int
	Minute  int
	Second  int
}

// Track is one track record loaded from an IMD file. Smap, Cmap, Hmap
// and Sflag are parallel arrays of NumSectors entries; Data holds all
// sector data back to back, NumSectors * SectorSize bytes. Loaded is
// set only when Data has been materialized.
type Track struct {
	Mode           uint8
	Cyl            uint8
	Head           uint8
	Hflag          uint8
	NumSectors     uint8
	SectorSizeCode uint8
	SectorSize     uint32

	Smap  []uint8
	Cmap  []uint8
	Hmap  []uint8
	Sflag []uint8
	Data  []byte

	Loaded bool
}

// SectorData returns the data slice for the sector at physical index i.
func (t *Track) SectorData(i int) []byte {
	off := i * int(t.SectorSize)
	return t.Data[off : off+int(t.SectorSize)]
}

// FindSector returns the physical index of the sector with the given
// logical ID, or -1 if the track has no such sector.
func (t *Track) FindSector(logicalID uint8) int {
	for i := 0; i < int(t.NumSectors); i++ {
		if t.Smap[i] == logicalID {
			return i
		}
	}
	return -1
}

// clone makes an independent copy of the track, maps and data included.
func (t *Track) clone() *Track {
	c := *t
	c.Smap = append([]uint8(nil), t.Smap...)
	c.Cmap = append([]uint8(nil), t.Cmap...)
	c.Hmap = append([]uint8(nil), t.Hmap...)
	c.Sflag = append([]uint8(nil), t.Sflag...)
	c.Data = append([]byte(nil), t.Data...)
	return &c
}

// IsUniform reports whether every byte of data has the same value, and
// returns that value. An empty buffer is uniform by convention.
func IsUniform(data []byte) (bool, byte) {
	if len(data) == 0 {
		return true, 0
	}
	b := data[0]
	for _, v := range data[1:] {
		if v != b {
			return false, b
		}
	}
	return true, b
}
