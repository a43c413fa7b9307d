package main

import (
	"fmt"
	"os"

	"github.com/sbelectronics/multibus/imdtool/pkg/imdchk"
	"github.com/spf13/cobra"
)

/* CheckDisk is complicated enough that it gets a file all to itself */

var (
	chkMaxCyl     int
	chkHead       int
	chkMaxSectors int
)

var checkNames = map[uint32]string{
	imdchk.CheckHeader:       "invalid header line",
	imdchk.CheckCommentTerm:  "missing comment terminator",
	imdchk.CheckTrackRead:    "track read failure",
	imdchk.CheckOffset:       "stream offset query failure",
	imdchk.CheckConCyl:       "cylinder constraint violated",
	imdchk.CheckConHead:      "head constraint violated",
	imdchk.CheckConSectors:   "sector count constraint violated",
	imdchk.CheckSeqCylDec:    "cylinder sequence decreases",
	imdchk.CheckSeqHeadOrder: "head sequence out of order",
	imdchk.CheckDupeSID:      "duplicate sector ID",
	imdchk.CheckInvSflag:     "invalid sector flag value",
	imdchk.CheckSflagDataErr: "sectors with data errors",
	imdchk.CheckSflagDelDAM:  "sectors with deleted address marks",
	imdchk.CheckDiffMaxCyl:   "max cylinder differs between sides",
}

func CheckDisk(cmd *cobra.Command, args []string) {
	opts := imdchk.DefaultOptions()
	opts.MaxCyl = chkMaxCyl
	opts.Head = chkHead
	opts.MaxSectors = chkMaxSectors

	results, err := imdchk.CheckFile(imageFileName, &opts)
	FatalErrCheck(err)

	Infof("Tracks read: %d\n", results.TracksRead)
	Infof("Total sectors: %d\n", results.TotalSectors)
	Infof("  unavailable: %d\n", results.UnavailableSectors)
	Infof("  compressed:  %d\n", results.CompressedSectors)
	Infof("  deleted:     %d\n", results.DeletedSectors)
	Infof("  data errors: %d\n", results.DataErrorSectors)
	Infof("Max cylinder side 0: %d\n", results.MaxCylSide0)
	Infof("Max cylinder side 1: %d\n", results.MaxCylSide1)
	Infof("Max head seen: %d\n", results.MaxHeadSeen)
	Infof("Detected interleave: %d\n", results.DetectedInterleave)

	checkErrors := 0
	for bit, name := range checkNames {
		if results.FailureMask&bit == 0 {
			continue
		}
		if opts.ErrorMask&bit != 0 {
			fmt.Printf("Error: %s\n", name)
			checkErrors++
		} else {
			fmt.Printf("Warning: %s\n", name)
		}
	}

	if checkErrors > 0 {
		fmt.Printf("Disk check completed with %d errors.\n", checkErrors)
		os.Exit(1)
	} else {
		Infof("Disk check completed successfully, no errors found.\n")
	}
}
