package main

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/sbelectronics/multibus/imdtool/pkg/imd"
	"github.com/sbelectronics/multibus/imdtool/pkg/imdfile"
	"github.com/spf13/cobra"
)

var (
	quiet          bool
	imageFileName  string
	outputFileName string
	flatBinary     bool
	cylNum         int
	headNum        int
	sectorNum      int
	trackMode      int
	trackSectors   int
	trackSize      int
	firstSectorID  int
	interleave     int
	skew           int
	fillByte       int

	rootCmd = &cobra.Command{
		Use:   "imdtool",
		Short: "Tool for inspecting and modifying ImageDisk (IMD) images",
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Show header, comment and track summary",
		Run:   Info,
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Dump parsed image structures to stdout",
		Run:   Dump,
	}

	commentCmd = &cobra.Command{
		Use:   "comment",
		Short: "Print the image comment block",
		Run:   Comment,
	}

	getCmd = &cobra.Command{
		Use:   "get",
		Short: "Read a sector (or the whole image as flat binary) to a local file",
		Run:   Get,
	}

	putCmd = &cobra.Command{
		Use:   "put",
		Short: "Write a local file's bytes into a sector",
		Run:   Put,
	}

	formatCmd = &cobra.Command{
		Use:   "format",
		Short: "Format (or re-format) a track",
		Run:   Format,
	}

	chkdskCmd = &cobra.Command{
		Use:   "chkdsk",
		Short: "Check image consistency",
		Run:   CheckDisk,
	}
)

func FatalErrCheck(err error) {
	if err != nil {
		fmt.Println("Fatal error:", err)
		os.Exit(-1)
	}
}

func Infof(format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Printf(format, args...)
}

func openImage(readOnly bool) *imdfile.ImageFile {
	img, err := imdfile.Open(imageFileName, readOnly)
	FatalErrCheck(err)
	return img
}

func Info(cmd *cobra.Command, args []string) {
	img := openImage(true)
	defer img.Close()

	hi := img.HeaderInfo()
	fmt.Printf("Version: %s\n", hi.Version)
	if hi.Year != 0 {
		fmt.Printf("Created: %02d/%02d/%04d %02d:%02d:%02d\n",
			hi.Day, hi.Month, hi.Year, hi.Hour, hi.Minute, hi.Second)
	}
	fmt.Printf("Comment: %s\n", string(img.Comment()))
	fmt.Printf("Tracks: %d\n", img.NumTracks())

	fmt.Printf("%4s %4s %4s %7s %5s %s\n", "Cyl", "Head", "Mode", "Sectors", "Size", "Flags")
	for i := 0; i < img.NumTracks(); i++ {
		t := img.TrackInfo(i)
		unavail, compressed, deleted, bad := 0, 0, 0, 0
		for _, flag := range t.Sflag {
			if flag == imd.SDRUnavailable {
				unavail++
				continue
			}
			if imd.SDRIsCompressed(flag) {
				compressed++
			}
			if imd.SDRHasDAM(flag) {
				deleted++
			}
			if imd.SDRHasErr(flag) {
				bad++
			}
		}
		fmt.Printf("%4d %4d %4d %7d %5d U%d C%d D%d E%d\n",
			t.Cyl, t.Head, t.Mode, t.NumSectors, t.SectorSize,
			unavail, compressed, deleted, bad)
	}
}

func Dump(cmd *cobra.Command, args []string) {
	img := openImage(true)
	defer img.Close()

	spew.Dump(img.HeaderInfo())
	for i := 0; i < img.NumTracks(); i++ {
		// Dump track metadata without the sector data itself, which
		// can run to megabytes.
		t := *img.TrackInfo(i)
		t.Data = nil
		spew.Dump(t)
	}
}

func Comment(cmd *cobra.Command, args []string) {
	img := openImage(true)
	defer img.Close()
	os.Stdout.Write(img.Comment())
	fmt.Println()
}

func Get(cmd *cobra.Command, args []string) {
	img := openImage(true)
	defer img.Close()

	var f *os.File
	if outputFileName == "" || outputFileName == "-" {
		f = os.Stdout
	} else {
		var err error
		f, err = os.OpenFile(outputFileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		FatalErrCheck(err)
		defer f.Close()
	}

	if flatBinary {
		opts := imd.DefaultWriteOpts()
		total := 0
		for i := 0; i < img.NumTracks(); i++ {
			t := img.TrackInfo(i)
			err := t.WriteBin(f, &opts)
			FatalErrCheck(err)
			total += len(t.Data)
		}
		Infof("Wrote %d bytes\n", total)
		return
	}

	idx, err := img.FindTrackByCH(uint8(cylNum), uint8(headNum))
	FatalErrCheck(err)
	buf := make([]byte, img.TrackInfo(idx).SectorSize)
	err = img.ReadSector(uint8(cylNum), uint8(headNum), uint8(sectorNum), buf)
	FatalErrCheck(err)

	n, err := f.Write(buf)
	FatalErrCheck(err)
	Infof("Wrote %d bytes from C%d H%d S%d\n", n, cylNum, headNum, sectorNum)
}

func Put(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		fmt.Printf("Arguments required: <filename>\n")
		os.Exit(-1)
	}

	data, err := os.ReadFile(args[0])
	FatalErrCheck(err)

	img := openImage(false)
	defer img.Close()

	err = img.WriteSector(uint8(cylNum), uint8(headNum), uint8(sectorNum), data)
	FatalErrCheck(err)
	if warn := img.TruncateWarning(); warn != nil {
		fmt.Println("Warning:", warn)
	}
	Infof("Stored %d bytes to C%d H%d S%d\n", len(data), cylNum, headNum, sectorNum)
}

func Format(cmd *cobra.Command, args []string) {
	img := openImage(false)
	defer img.Close()

	err := img.FormatTrack(uint8(cylNum), uint8(headNum), uint8(trackMode),
		uint8(trackSectors), uint32(trackSize), uint8(firstSectorID),
		interleave, skew, byte(fillByte))
	FatalErrCheck(err)
	if warn := img.TruncateWarning(); warn != nil {
		fmt.Println("Warning:", warn)
	}
	Infof("Formatted C%d H%d: %d sectors of %d bytes\n", cylNum, headNum, trackSectors, trackSize)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Hide nonessential output")
	rootCmd.PersistentFlags().StringVarP(&imageFileName, "filename", "f", "test.imd", "IMD image file to use")
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(chkdskCmd)

	for _, c := range []*cobra.Command{getCmd, putCmd, formatCmd} {
		c.PersistentFlags().IntVarP(&cylNum, "cyl", "c", 0, "cylinder number")
		c.PersistentFlags().IntVarP(&headNum, "head", "H", 0, "head number")
	}
	getCmd.PersistentFlags().IntVarP(&sectorNum, "sector", "s", 1, "logical sector ID")
	putCmd.PersistentFlags().IntVarP(&sectorNum, "sector", "s", 1, "logical sector ID")
	getCmd.PersistentFlags().StringVarP(&outputFileName, "output", "o", "", "output filename")
	getCmd.PersistentFlags().BoolVarP(&flatBinary, "bin", "b", false, "flatten the whole image to raw binary")

	formatCmd.PersistentFlags().IntVarP(&trackMode, "mode", "m", imd.ModeMFM250, "recording mode (0-5)")
	formatCmd.PersistentFlags().IntVarP(&trackSectors, "sectors", "n", 9, "sectors per track")
	formatCmd.PersistentFlags().IntVarP(&trackSize, "size", "z", 512, "sector size in bytes")
	formatCmd.PersistentFlags().IntVar(&firstSectorID, "first", 1, "first logical sector ID")
	formatCmd.PersistentFlags().IntVarP(&interleave, "interleave", "i", 1, "interleave factor")
	formatCmd.PersistentFlags().IntVar(&skew, "skew", 0, "offset of the first sector from physical position 0")
	formatCmd.PersistentFlags().IntVar(&fillByte, "fill", imd.FillByteDefault, "fill byte for formatted sectors")

	chkdskCmd.PersistentFlags().IntVar(&chkMaxCyl, "maxcyl", -1, "maximum allowed cylinder (-1 = no limit)")
	chkdskCmd.PersistentFlags().IntVar(&chkHead, "head", -1, "required head (-1 = any)")
	chkdskCmd.PersistentFlags().IntVar(&chkMaxSectors, "maxsec", -1, "maximum sectors per track (-1 = no limit)")

	err := rootCmd.Execute()
	FatalErrCheck(err)
}
