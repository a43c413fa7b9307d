package imd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectorSizeFromCode(t *testing.T) {
	want := []uint32{128, 256, 512, 1024, 2048, 4096, 8192}
	for code, size := range want {
		got, ok := SectorSizeFromCode(uint8(code))
		assert.True(t, ok)
		assert.Equal(t, size, got)
	}
	_, ok := SectorSizeFromCode(7)
	assert.False(t, ok)
}

func TestSectorSizeCode(t *testing.T) {
	for code, size := range SectorSizes() {
		got, ok := SectorSizeCode(size)
		assert.True(t, ok)
		assert.Equal(t, uint8(code), got)
	}
	_, ok := SectorSizeCode(100)
	assert.False(t, ok)
	_, ok = SectorSizeCode(0)
	assert.False(t, ok)
}

func TestSDRPredicates(t *testing.T) {
	cases := []struct {
		flag       uint8
		hasData    bool
		compressed bool
		dam        bool
		dataErr    bool
	}{
		{SDRUnavailable, false, false, false, false},
		{SDRNormal, true, false, false, false},
		{SDRCompressed, true, true, false, false},
		{SDRNormalDAM, true, false, true, false},
		{SDRCompressedDAM, true, true, true, false},
		{SDRNormalErr, true, false, false, true},
		{SDRCompressedErr, true, true, false, true},
		{SDRDeletedErr, true, false, true, true},
		{SDRCompressedDelErr, true, true, true, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.hasData, SDRHasData(c.flag), "flag 0x%02X", c.flag)
		assert.Equal(t, c.compressed, SDRIsCompressed(c.flag), "flag 0x%02X", c.flag)
		if c.hasData {
			assert.Equal(t, c.dam, SDRHasDAM(c.flag), "flag 0x%02X", c.flag)
			assert.Equal(t, c.dataErr, SDRHasErr(c.flag), "flag 0x%02X", c.flag)
		}
	}
	assert.False(t, SDRHasData(0x09))
	assert.False(t, SDRIsCompressed(0x09))
}

func TestComposeSDR(t *testing.T) {
	assert.Equal(t, uint8(SDRNormal), ComposeSDR(false, false, false))
	assert.Equal(t, uint8(SDRCompressed), ComposeSDR(true, false, false))
	assert.Equal(t, uint8(SDRNormalDAM), ComposeSDR(false, true, false))
	assert.Equal(t, uint8(SDRCompressedDAM), ComposeSDR(true, true, false))
	assert.Equal(t, uint8(SDRNormalErr), ComposeSDR(false, false, true))
	assert.Equal(t, uint8(SDRCompressedErr), ComposeSDR(true, false, true))
	assert.Equal(t, uint8(SDRDeletedErr), ComposeSDR(false, true, true))
	assert.Equal(t, uint8(SDRCompressedDelErr), ComposeSDR(true, true, true))
}

func TestIsUniform(t *testing.T) {
	uniform, b := IsUniform([]byte{0xE5, 0xE5, 0xE5})
	assert.True(t, uniform)
	assert.Equal(t, byte(0xE5), b)

	uniform, _ = IsUniform([]byte{0xE5, 0xE5, 0xAA})
	assert.False(t, uniform)

	uniform, _ = IsUniform(nil)
	assert.True(t, uniform)

	uniform, b = IsUniform([]byte{0x42})
	assert.True(t, uniform)
	assert.Equal(t, byte(0x42), b)
}

func TestFindSector(t *testing.T) {
	tr := &Track{NumSectors: 3, Smap: []uint8{5, 1, 3}}
	assert.Equal(t, 0, tr.FindSector(5))
	assert.Equal(t, 1, tr.FindSector(1))
	assert.Equal(t, 2, tr.FindSector(3))
	assert.Equal(t, -1, tr.FindSector(2))
}
