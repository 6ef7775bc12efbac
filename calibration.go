package stereoslam

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// CameraIntrinsics is one camera's intrinsic calibration: the 3x3 camera
// matrix K, the distortion coefficients [k1,k2,p1,p2,k3,k4,k5,k6], and the
// image size.
type CameraIntrinsics struct {
	K    [9]float64 `yaml:"k"`
	Dist [8]float64 `yaml:"dist"`
	W    int        `yaml:"w"`
	H    int        `yaml:"h"`
}

// Calibration is the stereo calibration object this module consumes from
// the external calibration subsystem. It is never produced by this module:
// calibration estimation and rectification happen upstream.
type Calibration struct {
	Left  CameraIntrinsics `yaml:"left"`
	Right CameraIntrinsics `yaml:"right"`

	// R, T describe the right camera relative to the left.
	R [9]float64 `yaml:"r"`
	T [3]float64 `yaml:"t"`

	// R1, R2, P1, P2, Q are the rectification outputs; P1/P2 supply the
	// projection matrices this module actually tracks against.
	R1 [9]float64 `yaml:"r1"`
	R2 [9]float64 `yaml:"r2"`
	P1 [12]float64 `yaml:"p1"`
	P2 [12]float64 `yaml:"p2"`
	Q  [16]float64 `yaml:"q"`

	LeftROI  [4]int `yaml:"left_roi"`
	RightROI [4]int `yaml:"right_roi"`

	Error float64 `yaml:"error"`
	OK    bool    `yaml:"ok"`
}

// LoadCalibration reads a Calibration from a YAML document at path.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("stereoslam: reading calibration %q: %w", path, err)
	}
	var c Calibration
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Calibration{}, fmt.Errorf("stereoslam: parsing calibration %q: %w", path, err)
	}
	return c, nil
}

// Save persists the calibration as a YAML document.
func (c Calibration) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("stereoslam: marshaling calibration: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// StartProjection builds the StereoCameraMatrix this module tracks
// against, from the rectification outputs P1/P2: the engine consumes
// pre-rectified pairs and never performs rectification itself. An invalid
// calibration (non-finite entries, zero baseline, ok=false) is fatal here,
// before any tracking starts.
func (c Calibration) StartProjection() (StereoCameraMatrix, error) {
	if !c.OK {
		return StereoCameraMatrix{}, fmt.Errorf("stereoslam: calibration reports ok=false (error=%g)", c.Error)
	}
	left := newProjectionMatrixFromRaw(mat.NewDense(3, 4, c.P1[:]))
	right := newProjectionMatrixFromRaw(mat.NewDense(3, 4, c.P2[:]))
	start := StereoCameraMatrix{Left: left, Right: right}
	if err := start.Valid(); err != nil {
		return StereoCameraMatrix{}, err
	}
	return start, nil
}
