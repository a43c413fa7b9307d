package imdfile

import (
	"fmt"

	"github.com/sbelectronics/multibus/imdtool/pkg/imd"
)

// ReadSector copies the sector at (cyl, head, logicalID) into buf,
// which must hold at least one sector.
func (img *ImageFile) ReadSector(cyl, head, logicalID uint8, buf []byte) error {
	if img.file == nil {
		return fmt.Errorf("%w: image closed", ErrInvalidArgument)
	}
	if err := img.checkGeometryCH(cyl, head); err != nil {
		return err
	}
	if err := img.checkGeometrySector(logicalID); err != nil {
		return err
	}

	trackIdx := img.findTrack(cyl, head)
	if trackIdx < 0 {
		return fmt.Errorf("%w: track C%d H%d", ErrNotFound, cyl, head)
	}
	track := img.tracks[trackIdx]

	sectorIdx := track.FindSector(logicalID)
	if sectorIdx < 0 {
		return fmt.Errorf("%w: sector %d on C%d H%d", ErrNotFound, logicalID, cyl, head)
	}
	if track.Sflag[sectorIdx] == imd.SDRUnavailable {
		return fmt.Errorf("%w: sector %d on C%d H%d", ErrUnavailable, logicalID, cyl, head)
	}
	if len(buf) < int(track.SectorSize) {
		return fmt.Errorf("%w: need %d bytes", ErrBufferSize, track.SectorSize)
	}

	copy(buf, track.SectorData(sectorIdx))
	return nil
}

// WriteSector overwrites the sector at (cyl, head, logicalID) with
// buf, which must be exactly one sector long, and persists the change
// by rewriting the backing file.
//
// If the edited sector was stored compressed and the new data is not
// uniform, the whole track is rewritten decompressed: compressed
// records can only represent uniform data, so every sector of that
// track is stored as normal data afterwards, DAM/ERR kept. In-memory
// sector flags are then updated to match what a fresh parse of the
// file would observe.
func (img *ImageFile) WriteSector(cyl, head, logicalID uint8, buf []byte) error {
	if img.file == nil {
		return fmt.Errorf("%w: image closed", ErrInvalidArgument)
	}
	if img.writeProtected {
		return ErrWriteProtected
	}
	if err := img.checkGeometryCH(cyl, head); err != nil {
		return err
	}

	trackIdx := img.findTrack(cyl, head)
	if trackIdx < 0 {
		return fmt.Errorf("%w: track C%d H%d", ErrNotFound, cyl, head)
	}
	track := img.tracks[trackIdx]

	sectorIdx := track.FindSector(logicalID)
	if sectorIdx < 0 {
		return fmt.Errorf("%w: sector %d on C%d H%d", ErrNotFound, logicalID, cyl, head)
	}
	if err := img.checkGeometrySector(logicalID); err != nil {
		return err
	}
	if len(buf) != int(track.SectorSize) {
		return fmt.Errorf("%w: got %d bytes, sector is %d", ErrSectorSize, len(buf), track.SectorSize)
	}

	origFlag := track.Sflag[sectorIdx]
	wasCompressed := imd.SDRIsCompressed(origFlag)

	copy(track.SectorData(sectorIdx), buf)

	opts := imd.DefaultWriteOpts()
	forcedDecompress := false
	if wasCompressed {
		if uniform, _ := imd.IsUniform(buf); !uniform {
			opts.CompressionMode = imd.CompressionForceDecompress
			forcedDecompress = true
		}
	}

	if err := img.rewriteFile(trackIdx, &opts); err != nil {
		return err
	}

	if forcedDecompress {
		// Every sector of the track went to disk uncompressed. Strip
		// the compressed bit everywhere, keeping DAM/ERR; unavailable
		// sectors stay unavailable.
		for i, flag := range track.Sflag {
			if flag == imd.SDRUnavailable {
				continue
			}
			track.Sflag[i] = imd.ComposeSDR(false, imd.SDRHasDAM(flag), imd.SDRHasErr(flag))
		}
	} else if origFlag != imd.SDRUnavailable {
		uniform, _ := imd.IsUniform(track.SectorData(sectorIdx))
		compressed := uniform && opts.CompressionMode != imd.CompressionForceDecompress
		dam := imd.SDRHasDAM(origFlag) && !opts.ForceNonDeleted
		dataErr := imd.SDRHasErr(origFlag) && !opts.ForceNonBad
		track.Sflag[sectorIdx] = imd.ComposeSDR(compressed, dam, dataErr)
	}

	return nil
}
