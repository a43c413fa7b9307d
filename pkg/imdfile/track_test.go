package imdfile

import (
	"os"
	"testing"

	"github.com/sbelectronics/multibus/imdtool/pkg/imd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTrackInsertOrdered(t *testing.T) {
	path := scratchImage(t, "x",
		fillTrack(t, 0, 0, 4, 128, 0xE5),
		fillTrack(t, 1, 0, 4, 128, 0xE5))

	img, err := Open(path, false)
	require.NoError(t, err)

	smap := []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, img.WriteTrack(0, 1, 9, 256, 0x00, smap, nil, nil))
	require.Equal(t, 3, img.NumTracks())

	// The new track must sit between (0,0) and (1,0).
	tr := img.TrackInfo(1)
	assert.Equal(t, uint8(0), tr.Cyl)
	assert.Equal(t, uint8(1), tr.Head)
	assert.Equal(t, uint8(0), tr.Hflag&imd.HFlagCmapPresent)
	assert.Equal(t, uint8(0), tr.Hflag&imd.HFlagHmapPresent)
	for _, flag := range tr.Sflag {
		assert.Equal(t, uint8(imd.SDRCompressed), flag)
	}
	img.Close()

	img, err = Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	require.Equal(t, 3, img.NumTracks())
	tr = img.TrackInfo(1)
	assert.Equal(t, uint8(0), tr.Cyl)
	assert.Equal(t, uint8(1), tr.Head)
	assert.Equal(t, uint8(9), tr.NumSectors)
	assert.Equal(t, uint32(256), tr.SectorSize)
	assert.Equal(t, smap, tr.Smap)
	// cmap/hmap were omitted: they default to the track's own values.
	for i := 0; i < 9; i++ {
		assert.Equal(t, uint8(0), tr.Cmap[i])
		assert.Equal(t, uint8(1), tr.Hmap[i])
	}

	buf := make([]byte, 256)
	require.NoError(t, img.ReadSector(0, 1, 5, buf))
	for _, b := range buf {
		assert.Equal(t, byte(0x00), b)
	}
}

func TestWriteTrackOverwrite(t *testing.T) {
	path := scratchImage(t, "x",
		fillTrack(t, 0, 0, 8, 512, 0xE5),
		fillTrack(t, 1, 0, 8, 512, 0xE5))

	img, err := Open(path, false)
	require.NoError(t, err)

	require.NoError(t, img.WriteTrack(0, 0, 4, 128, 0x55, nil, nil, nil))
	assert.Equal(t, 2, img.NumTracks())
	img.Close()

	// The image shrank: a reopen must see exactly the new contents and
	// no trailing garbage from the longer original file.
	img, err = Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	require.Equal(t, 2, img.NumTracks())
	tr := img.TrackInfo(0)
	assert.Equal(t, uint8(4), tr.NumSectors)
	assert.Equal(t, uint32(128), tr.SectorSize)
	assert.Equal(t, []uint8{1, 2, 3, 4}, tr.Smap)

	buf := make([]byte, 128)
	require.NoError(t, img.ReadSector(0, 0, 1, buf))
	assert.Equal(t, byte(0x55), buf[0])
}

func TestWriteTrackWithMaps(t *testing.T) {
	path := scratchImage(t, "x", fillTrack(t, 0, 0, 1, 128, 0))

	img, err := Open(path, false)
	require.NoError(t, err)

	smap := []uint8{1, 2, 3}
	cmap := []uint8{40, 40, 40}
	hmap := []uint8{1, 1, 1}
	require.NoError(t, img.WriteTrack(2, 0, 3, 128, 0x00, smap, cmap, hmap))
	img.Close()

	img, err = Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	idx, err := img.FindTrackByCH(2, 0)
	require.NoError(t, err)
	tr := img.TrackInfo(idx)
	assert.NotZero(t, tr.Hflag&imd.HFlagCmapPresent)
	assert.NotZero(t, tr.Hflag&imd.HFlagHmapPresent)
	assert.Equal(t, cmap, tr.Cmap)
	assert.Equal(t, hmap, tr.Hmap)
}

func TestWriteTrackValidation(t *testing.T) {
	path := scratchImage(t, "x", fillTrack(t, 0, 0, 1, 128, 0))

	img, err := Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	// cmap/hmap without smap are rejected.
	err = img.WriteTrack(1, 0, 2, 128, 0, nil, []uint8{0, 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Map length must match the sector count.
	err = img.WriteTrack(1, 0, 2, 128, 0, []uint8{1}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Sector size must be one of the seven IMD sizes.
	err = img.WriteTrack(1, 0, 2, 100, 0, nil, nil, nil)
	assert.ErrorIs(t, err, ErrSectorSize)

	assert.Equal(t, 1, img.NumTracks())
}

func TestWriteTrackZeroSectors(t *testing.T) {
	path := scratchImage(t, "x", fillTrack(t, 0, 0, 1, 128, 0))

	img, err := Open(path, false)
	require.NoError(t, err)
	require.NoError(t, img.WriteTrack(1, 0, 0, 128, 0, nil, nil, nil))
	img.Close()

	img, err = Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	idx, err := img.FindTrackByCH(1, 0)
	require.NoError(t, err)
	tr := img.TrackInfo(idx)
	assert.Equal(t, uint8(0), tr.NumSectors)
	assert.Empty(t, tr.Data)
}

func TestFormatTrack(t *testing.T) {
	path := scratchImage(t, "x", fillTrack(t, 0, 0, 1, 128, 0))

	img, err := Open(path, false)
	require.NoError(t, err)

	require.NoError(t, img.FormatTrack(3, 0, imd.ModeMFM500, 8, 512, 1, 2, 0, 0xE5))
	img.Close()

	img, err = Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	idx, err := img.FindTrackByCH(3, 0)
	require.NoError(t, err)
	tr := img.TrackInfo(idx)
	assert.Equal(t, uint8(imd.ModeMFM500), tr.Mode)
	assert.Equal(t, []uint8{1, 5, 2, 6, 3, 7, 4, 8}, tr.Smap)
	assert.Equal(t, 2, tr.BestInterleave())
	for _, flag := range tr.Sflag {
		assert.Equal(t, uint8(imd.SDRCompressed), flag)
	}
}

func TestFormatTrackSkew(t *testing.T) {
	path := scratchImage(t, "x", fillTrack(t, 0, 0, 1, 128, 0))

	img, err := Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	require.NoError(t, img.FormatTrack(4, 0, imd.ModeMFM250, 4, 256, 1, 1, 2, 0x00))
	idx, err := img.FindTrackByCH(4, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 4, 1, 2}, img.TrackInfo(idx).Smap)
}

func TestFormatTrackValidation(t *testing.T) {
	path := scratchImage(t, "x", fillTrack(t, 0, 0, 1, 128, 0))

	img, err := Open(path, false)
	require.NoError(t, err)
	defer img.Close()

	assert.ErrorIs(t, img.FormatTrack(1, 0, 6, 4, 128, 1, 1, 0, 0), ErrInvalidArgument)
	assert.ErrorIs(t, img.FormatTrack(1, 0, 0, 4, 128, 1, 0, 0, 0), ErrInvalidArgument)
	assert.ErrorIs(t, img.FormatTrack(1, 0, 0, 4, 128, 253, 1, 0, 0), ErrInvalidArgument)
}

func TestWriteTrackPersistsViaRawScan(t *testing.T) {
	path := scratchImage(t, "x", fillTrack(t, 0, 0, 1, 128, 0xE5))

	img, err := Open(path, false)
	require.NoError(t, err)
	require.NoError(t, img.WriteTrack(0, 1, 2, 128, 0xE5, nil, nil, nil))
	img.Close()

	// Cross-check with the codec-level scanner.
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	valid, err := imd.TrackHasValidSectors(f, 0, 1)
	require.NoError(t, err)
	assert.True(t, valid)
}
