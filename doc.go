/*
Package stereoslam implements the tracking and mapping core of a stereo
visual SLAM engine: given a time-ordered sequence of rectified stereo
image pairs from a calibrated rig, it incrementally estimates the 6-DoF
pose of the rig and builds a sparse 3-D map of the landmarks it has
observed.

- stereoslam consumes pre-rectified stereo pairs through an abstract
  tracker (see the tracking subpackage) and an external Calibration; it
  never performs camera calibration, rectification, or dense stereo.
- It never attempts loop closure, global bundle adjustment,
  relocalization, or multi-session map merging — only local, windowed
  refinement of the most recent keyframes.

# Basic Usage

	calib, err := stereoslam.LoadCalibration("rig.yaml")
	world, err := stereoslam.NewWorld(calib)

	for pair := range stereoPairs {
		outcome, err := world.Track(pair.Left, pair.Right)
		if err != nil {
			return err
		}
		if !outcome.OK {
			log.Printf("tracking: %s", outcome.Reason)
		}
	}

	cloud := world.SparseCloud()
	path := world.Path()

# Core Types

Map owns an ordered sequence of KeyFrames plus the set of live
MapPoints they observe. World owns the ordered sequence of Maps opened
over the session (a new Map is opened whenever tracking is lost) plus
the trackers and tuning shared across them.

# Concurrency

World.Track is driven serially by a single ingest goroutine. The local
bundle adjuster (see the bundle subpackage) may run concurrently on a
snapshot of the active Map's most recent keyframes; it takes the Map's
write lock only during the brief snapshot and write-back phases.
*/
package stereoslam
