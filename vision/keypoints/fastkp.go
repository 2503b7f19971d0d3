package keypoints

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"
)

// FASTConfig holds the parameters necessary to compute the FAST keypoints.
type FASTConfig struct {
	NMatchesCircle int     `json:"n_matches"`
	NMSWinSize     int     `json:"nms_win_size_px"`
	Threshold      float64 `json:"threshold"`
	Oriented       bool    `json:"oriented"`
	Radius         int     `json:"radius"`
}

// Validate checks the configuration bounds.
func (cfg *FASTConfig) Validate() error {
	if cfg.NMatchesCircle < 1 || cfg.NMatchesCircle > 16 {
		return errors.Errorf("n_matches must be in [1, 16], got %d", cfg.NMatchesCircle)
	}
	if cfg.NMSWinSize < 1 {
		return errors.New("nms_win_size_px must be >= 1")
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return errors.Errorf("threshold is a fraction of the gray range, must be in (0, 1], got %v", cfg.Threshold)
	}
	return nil
}

// LoadFASTConfiguration loads a FASTConfig from a json file.
func LoadFASTConfiguration(file string) *FASTConfig {
	var config FASTConfig
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err != nil {
		return nil
	}
	jsonParser := json.NewDecoder(configFile)
	err = jsonParser.Decode(&config)
	if err != nil {
		return nil
	}
	return &config
}

var (
	// CrossIdx contains the neighbors coordinates in a 3-cross neighborhood.
	CrossIdx = []image.Point{{0, 3}, {3, 0}, {0, -3}, {-3, 0}}
	// CircleIdx contains the neighbors coordinates in a circle of radius 3
	// neighborhood, starting above the center and going clockwise.
	CircleIdx = []image.Point{
		{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
		{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
	}
)

// FASTKeypoints stores keypoint locations and, if Oriented is set in the
// configuration, their orientations.
type FASTKeypoints OrientedKeypoints

// IsOriented returns true if the FASTKeypoints are oriented.
func (kps *FASTKeypoints) IsOriented() bool {
	return kps.Orientations != nil
}

// GetPointValuesInNeighborhood returns the values of the image at the
// neighborhood points around p.
func GetPointValuesInNeighborhood(img *image.Gray, p image.Point, neighborhood []image.Point) []float64 {
	vals := make([]float64, len(neighborhood))
	for i, n := range neighborhood {
		vals[i] = float64(img.GrayAt(p.X+n.X, p.Y+n.Y).Y)
	}
	return vals
}

// getBrighterValues marks with 1 the values strictly brighter than t.
func getBrighterValues(s []float64, t float64) []float64 {
	brighter := make([]float64, len(s))
	for i, v := range s {
		if v > t {
			brighter[i] = 1
		}
	}
	return brighter
}

// getDarkerValues marks with 1 the values strictly darker than t.
func getDarkerValues(s []float64, t float64) []float64 {
	darker := make([]float64, len(s))
	for i, v := range s {
		if v < t {
			darker[i] = 1
		}
	}
	return darker
}

// isValidSliceVals returns true if the slice contains a run of strictly more
// than n contiguous non-zero values.
func isValidSliceVals(s []float64, n int) bool {
	run, maxRun := 0, 0
	for _, v := range s {
		if v != 0 {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}
	return maxRun > n
}

func sumOfPositiveValuesSlice(s []float64) float64 {
	sum := 0.0
	for _, v := range s {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

func sumOfNegativeValuesSlice(s []float64) float64 {
	sum := 0.0
	for _, v := range s {
		if v < 0 {
			sum += v
		}
	}
	return sum
}

// fastScore returns the corner score at pixel p, 0 if p is not a corner: the
// absolute sum of the circle differences on the contiguous side.
func fastScore(img *image.Gray, p image.Point, threshold float64, nMatches int) float64 {
	center := float64(img.GrayAt(p.X, p.Y).Y)
	vals := GetPointValuesInNeighborhood(img, p, CircleIdx)
	diffs := make([]float64, len(vals))
	for i, v := range vals {
		diffs[i] = v - center
	}
	if brighter := getBrighterValues(vals, center+threshold); isValidSliceVals(brighter, nMatches) {
		return sumOfPositiveValuesSlice(diffs)
	}
	if darker := getDarkerValues(vals, center-threshold); isValidSliceVals(darker, nMatches) {
		return -sumOfNegativeValuesSlice(diffs)
	}
	return 0
}

// ComputeFAST computes the location of FAST keypoints. The threshold in the
// configuration is a fraction of the gray range. Non-maximum suppression
// keeps only the strongest corner in every NMSWinSize window.
func ComputeFAST(img *image.Gray, cfg *FASTConfig) KeyPoints {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	threshold := cfg.Threshold * 255.
	scores := make([]float64, w*h)
	for y := 3; y < h-3; y++ {
		for x := 3; x < w-3; x++ {
			scores[y*w+x] = fastScore(img, image.Point{x, y}, threshold, cfg.NMatchesCircle)
		}
	}
	// non-maximum suppression
	radius := cfg.NMSWinSize / 2
	kps := make(KeyPoints, 0)
	for y := 3; y < h-3; y++ {
		for x := 3; x < w-3; x++ {
			score := scores[y*w+x]
			if score <= 0 {
				continue
			}
			isMax := true
			for dy := -radius; dy <= radius && isMax; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h || (dx == 0 && dy == 0) {
						continue
					}
					neighbor := scores[ny*w+nx]
					if neighbor > score || (neighbor == score && (dy < 0 || (dy == 0 && dx < 0))) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				kps = append(kps, image.Point{x, y})
			}
		}
	}
	return kps
}

// NewFASTKeypointsFromImage returns a pointer to a FASTKeypoints struct
// containing the FAST keypoints of the image, with their orientations if
// Oriented is set in the configuration.
func NewFASTKeypointsFromImage(img *image.Gray, cfg *FASTConfig) *FASTKeypoints {
	kps := ComputeFAST(img, cfg)
	var orientations []float64
	if cfg.Oriented {
		orientations, _ = computeKeypointsOrientations(img, kps)
	}
	return &FASTKeypoints{
		kps,
		orientations,
	}
}
