package imdfile

import (
	"fmt"

	"github.com/sbelectronics/multibus/imdtool/pkg/imd"
)

// WriteTrack writes (or overwrites) an entire track and persists it.
// An existing track at (cyl, head) is replaced in place; otherwise the
// track is inserted at its ordered position. Every sector is filled
// with fill. If smap is nil a sequential map 1..numSectors is
// generated; cmap and hmap are optional but require smap. The track is
// written force-compressed, so a freshly written track reads back with
// compressed sector flags.
func (img *ImageFile) WriteTrack(cyl, head, numSectors uint8, sectorSize uint32, fill byte, smap, cmap, hmap []uint8) error {
	return img.writeTrack(cyl, head, imd.ModeMFM250, numSectors, sectorSize, fill, smap, cmap, hmap)
}

// FormatTrack formats (or re-formats) a track with generated sector
// numbering: logical IDs firstID..firstID+numSectors-1 are laid out
// physically starting at skew, stepping by interleave and advancing to
// the next free slot on collision. All sectors are filled with fill.
func (img *ImageFile) FormatTrack(cyl, head, mode, numSectors uint8, sectorSize uint32, firstID uint8, interleave, skew int, fill byte) error {
	if mode >= imd.NumModes {
		return fmt.Errorf("%w: mode %d", ErrInvalidArgument, mode)
	}
	if interleave < 1 || skew < 0 {
		return fmt.Errorf("%w: interleave %d skew %d", ErrInvalidArgument, interleave, skew)
	}
	if int(firstID)+int(numSectors)-1 > 255 {
		return fmt.Errorf("%w: sector IDs overflow from first ID %d", ErrInvalidArgument, firstID)
	}

	var smap []uint8
	if numSectors > 0 {
		n := int(numSectors)
		smap = make([]uint8, n)
		used := make([]bool, n)
		pos := skew % n
		for i := 0; i < n; i++ {
			for used[pos] {
				pos = (pos + 1) % n
			}
			smap[pos] = firstID + uint8(i)
			used[pos] = true
			pos = (pos + interleave) % n
		}
	}

	return img.writeTrack(cyl, head, mode, numSectors, sectorSize, fill, smap, nil, nil)
}

func (img *ImageFile) writeTrack(cyl, head, mode, numSectors uint8, sectorSize uint32, fill byte, smap, cmap, hmap []uint8) error {
	if img.file == nil {
		return fmt.Errorf("%w: image closed", ErrInvalidArgument)
	}
	if img.writeProtected {
		return ErrWriteProtected
	}
	if err := img.checkGeometryCH(cyl, head); err != nil {
		return err
	}
	if numSectors > 0 && smap == nil && (cmap != nil || hmap != nil) {
		return fmt.Errorf("%w: cmap/hmap require smap", ErrInvalidArgument)
	}
	if smap != nil && len(smap) != int(numSectors) {
		return fmt.Errorf("%w: smap has %d entries for %d sectors", ErrInvalidArgument, len(smap), numSectors)
	}
	if cmap != nil && len(cmap) != int(numSectors) {
		return fmt.Errorf("%w: cmap has %d entries for %d sectors", ErrInvalidArgument, len(cmap), numSectors)
	}
	if hmap != nil && len(hmap) != int(numSectors) {
		return fmt.Errorf("%w: hmap has %d entries for %d sectors", ErrInvalidArgument, len(hmap), numSectors)
	}
	sizeCode, ok := imd.SectorSizeCode(sectorSize)
	if !ok {
		return fmt.Errorf("%w: %d bytes", ErrSectorSize, sectorSize)
	}

	track := &imd.Track{
		Mode:           mode,
		Cyl:            cyl,
		Head:           head,
		NumSectors:     numSectors,
		SectorSizeCode: sizeCode,
		SectorSize:     sectorSize,
		Loaded:         true,
	}
	if cmap != nil {
		track.Hflag |= imd.HFlagCmapPresent
	}
	if hmap != nil {
		track.Hflag |= imd.HFlagHmapPresent
	}

	n := int(numSectors)
	if n > 0 {
		track.Smap = make([]uint8, n)
		track.Cmap = make([]uint8, n)
		track.Hmap = make([]uint8, n)
		track.Sflag = make([]uint8, n)
		track.Data = make([]byte, n*int(sectorSize))
		for i := range track.Data {
			track.Data[i] = fill
		}
		for i := 0; i < n; i++ {
			track.Sflag[i] = imd.SDRNormal
			if smap != nil {
				track.Smap[i] = smap[i]
			} else {
				track.Smap[i] = uint8(i + 1)
			}
			if cmap != nil {
				track.Cmap[i] = cmap[i]
			} else {
				track.Cmap[i] = cyl
			}
			if hmap != nil {
				track.Hmap[i] = hmap[i]
			} else {
				track.Hmap[i] = head
			}
		}
	}

	existingIdx := img.findTrack(cyl, head)
	var idx int
	if existingIdx >= 0 {
		idx = existingIdx
		img.tracks[idx] = track
	} else {
		idx = img.insertionIndex(cyl, head)
		img.tracks = append(img.tracks, nil)
		copy(img.tracks[idx+1:], img.tracks[idx:])
		img.tracks[idx] = track
	}

	opts := imd.DefaultWriteOpts()
	opts.CompressionMode = imd.CompressionForceCompress

	if err := img.rewriteFile(idx, &opts); err != nil {
		if existingIdx < 0 {
			// Undo the insertion; an overwritten slot stays mutated,
			// persistence failed either way.
			copy(img.tracks[idx:], img.tracks[idx+1:])
			img.tracks = img.tracks[:len(img.tracks)-1]
		}
		return err
	}

	// Uniform fill plus force-compress means every sector went to disk
	// compressed; make the in-memory flags agree with a reopen.
	for i := 0; i < n; i++ {
		track.Sflag[i] = imd.SDRCompressed
	}

	return nil
}
