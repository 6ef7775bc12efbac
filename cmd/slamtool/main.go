// Command slamtool drives the stereoslam engine over an offline sequence of
// stereo image pairs stored on disk: a directory holding a sequence.ini
// plus left/right image folders, and a stereo calibration file. It writes
// the recovered keyframe trajectory when the sequence ends.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"
	"golang.org/x/term"
	"gopkg.in/ini.v1"

	stereoslam "github.com/oakfield-robotics/stereoslam"
)

// sequenceMeta describes an on-disk sequence: frame count, frame rate, and
// the two image directories of the stereo pair.
type sequenceMeta struct {
	name      string
	length    int
	fps       int
	imDirL    string
	imDirR    string
	imExt     string
	startTime time.Time
}

func loadSequenceMeta(dir string) (sequenceMeta, error) {
	cfg, err := ini.Load(filepath.Join(dir, "sequence.ini"))
	if err != nil {
		return sequenceMeta{}, fmt.Errorf("slamtool: loading sequence.ini: %w", err)
	}
	section := cfg.Section("Sequence")

	meta := sequenceMeta{
		name:   section.Key("name").MustString(filepath.Base(dir)),
		length: section.Key("seqLength").MustInt(0),
		fps:    section.Key("frameRate").MustInt(10),
		imDirL: section.Key("imDirLeft").MustString("left"),
		imDirR: section.Key("imDirRight").MustString("right"),
		imExt:  section.Key("imExt").MustString(".png"),
	}
	if meta.length == 0 {
		return sequenceMeta{}, fmt.Errorf("slamtool: sequence.ini missing seqLength")
	}
	meta.startTime = time.Now()
	return meta, nil
}

func (s sequenceMeta) framePath(dir, side string, index int) string {
	return filepath.Join(dir, side, fmt.Sprintf("%06d%s", index, s.imExt))
}

func main() {
	var (
		sequenceDir   = flag.String("sequence", "", "directory containing sequence.ini and left/right image folders")
		calibrationIn = flag.String("calibration", "", "path to the stereo calibration YAML file")
		trajectoryOut = flag.String("trajectory", "trajectory.txt", "output trajectory file path")
		trackerKind   = flag.String("tracker", "", "override the configured tracker (flow|features)")
	)
	flag.Parse()

	if *sequenceDir == "" || *calibrationIn == "" {
		fmt.Fprintln(os.Stderr, "usage: slamtool -sequence <dir> -calibration <file.yaml> [-trajectory <out>] [-tracker flow|features]")
		os.Exit(2)
	}

	if err := run(*sequenceDir, *calibrationIn, *trajectoryOut, *trackerKind); err != nil {
		log.Fatalf("slamtool: %v", err)
	}
}

func run(sequenceDir, calibrationPath, trajectoryPath, trackerKind string) error {
	calibration, err := stereoslam.LoadCalibration(calibrationPath)
	if err != nil {
		return err
	}

	tuning := stereoslam.DefaultTuning()
	if trackerKind != "" {
		tuning.TrackerKind = trackerKind
	}

	world, err := stereoslam.NewWorld(calibration, stereoslam.WithTuning(tuning))
	if err != nil {
		return fmt.Errorf("constructing world: %w", err)
	}

	meta, err := loadSequenceMeta(sequenceDir)
	if err != nil {
		return err
	}

	bar := newProgressBar(meta)
	frameInterval := time.Second / time.Duration(meta.fps)

	for i := 1; i <= meta.length; i++ {
		left := gocv.IMRead(meta.framePath(sequenceDir, meta.imDirL, i), gocv.IMReadGrayScale)
		right := gocv.IMRead(meta.framePath(sequenceDir, meta.imDirR, i), gocv.IMReadGrayScale)
		if left.Empty() || right.Empty() {
			left.Close()
			right.Close()
			bar.Add(1)
			continue
		}

		timestamp := meta.startTime.Add(time.Duration(i-1) * frameInterval)
		outcome, err := world.Track(
			stereoslam.StampedImage{Timestamp: timestamp, Pixels: left},
			stereoslam.StampedImage{Timestamp: timestamp, Pixels: right},
		)
		left.Close()
		right.Close()
		if err != nil {
			return fmt.Errorf("tracking pair %d: %w", i, err)
		}
		if !outcome.OK {
			log.Printf("pair %d: tracking lost (%s)", i, outcome.Reason)
		}
		bar.Add(1)
	}

	stats := world.Stats()
	fmt.Printf("\nprocessed %d pairs: %d ok, %d failed, %d keyframes, %d map boundaries, mean inlier ratio %.3f\n",
		stats.PairsProcessed, stats.PairsSucceeded, stats.PairsFailed, stats.KeyframesAdded, len(stats.MapBoundaries), stats.MeanInlierRatio())

	if err := world.Close(); err != nil {
		return fmt.Errorf("closing world: %w", err)
	}
	return writeTrajectory(trajectoryPath, world)
}

// writeTrajectory persists one line per keyframe in `timestamp tx ty tz qx
// qy qz qw` format, in the left-camera world frame.
func writeTrajectory(path string, world *stereoslam.World) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trajectory file: %w", err)
	}
	defer f.Close()

	for _, frame := range world.Frames() {
		pose := frame.ProjectionMatrix().Left
		translation := pose.Translation()
		qx, qy, qz, qw := rotationToQuaternion(pose.Rotation())
		_, err := fmt.Fprintf(f, "%d %.6f %.6f %.6f %.6f %.6f %.6f %.6f\n",
			frame.Timestamp().UnixNano(),
			translation.At(0, 0), translation.At(1, 0), translation.At(2, 0),
			qx, qy, qz, qw,
		)
		if err != nil {
			return fmt.Errorf("writing trajectory: %w", err)
		}
	}
	return nil
}

// newProgressBar builds a per-pair progress bar, sizing its description to
// the current terminal width.
func newProgressBar(meta sequenceMeta) *progressbar.ProgressBar {
	desc := truncateDescription(meta.name, terminalWidth(80))
	return progressbar.NewOptions(meta.length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pairs"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func terminalWidth(fallback int) int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return fallback
}

func truncateDescription(desc string, termCols int) string {
	maxLen := termCols - 25
	if len(desc) <= maxLen || maxLen <= 10 {
		return desc
	}
	start := desc[:maxLen/2-2]
	end := desc[len(desc)-(maxLen/2-3):]
	return start + " ... " + end
}
