package keypoints

import (
	"math/bits"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// rangeInt generates a slice of integers from l to u-1, with step size step.
func rangeInt(u, l, step int, logger golog.Logger) []int {
	if u < l {
		logger.Info("Upper bound u is lower than the lower bound l. Inverting u and l.")
		u, l = l, u
	}
	n := (u - l) / step
	out := make([]int, n)
	current := l
	out[0] = l
	for i := 1; i < n; i++ {
		current += step
		out[i] = current
	}
	return out
}

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	DoCrossCheck bool `json:"do_cross_check"`
	MaxDist      int  `json:"max_dist"`
}

// Validate checks the configuration bounds.
func (cfg *MatchingConfig) Validate() error {
	if cfg.MaxDist < 0 {
		return errors.New("max_dist must be >= 0")
	}
	return nil
}

// DescriptorMatch contains the index of a match in the first and second set of descriptors.
type DescriptorMatch struct {
	Idx1 int
	Idx2 int
}

// DescriptorMatches contains the descriptors and their matches.
type DescriptorMatches struct {
	Indices      []DescriptorMatch
	Descriptors1 Descriptors
	Descriptors2 Descriptors
}

// hammingDistance returns the number of differing bits between two packed
// binary descriptors, -1 if their lengths differ.
func hammingDistance(d1, d2 Descriptor) int {
	if len(d1) != len(d2) {
		return -1
	}
	dist := 0
	for i := range d1 {
		dist += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return dist
}

// descriptorsHammingDistances returns the len(desc1) x len(desc2) matrix of
// pairwise Hamming distances.
func descriptorsHammingDistances(desc1, desc2 Descriptors) ([][]int, error) {
	if len(desc1) == 0 || len(desc2) == 0 {
		return nil, errors.New("descriptor sets must not be empty")
	}
	distances := make([][]int, len(desc1))
	for i, d1 := range desc1 {
		distances[i] = make([]int, len(desc2))
		for j, d2 := range desc2 {
			d := hammingDistance(d1, d2)
			if d < 0 {
				return nil, errors.Errorf("descriptors %d and %d have different lengths", i, j)
			}
			distances[i][j] = d
		}
	}
	return distances, nil
}

// transposeInt transposes a rectangular int matrix.
func transposeInt(m [][]int) [][]int {
	out := make([][]int, len(m[0]))
	for i := range out {
		out[i] = make([]int, len(m))
		for j := range out[i] {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// argMinPerRow returns the column index of the minimum of each row.
func argMinPerRow(m [][]int) []int {
	out := make([]int, len(m))
	for i, row := range m {
		best := 0
		for j, v := range row {
			if v < row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// MatchDescriptors takes 2 sets of descriptors and performs matching,
// returning the matches sorted by increasing distance. Returns nil when no
// matching is possible.
func MatchDescriptors(desc1, desc2 Descriptors, cfg *MatchingConfig, logger golog.Logger) *DescriptorMatches {
	distances, err := descriptorsHammingDistances(desc1, desc2)
	if err != nil {
		logger.Debugw("cannot match descriptors", "error", err)
		return nil
	}
	indices1 := rangeInt(len(desc1), 0, 1, logger)
	indices2 := argMinPerRow(distances)
	// mask for valid indices
	maskIdx := make([]int, len(desc1))
	for i := range maskIdx {
		maskIdx[i] = 1
	}
	if cfg.DoCrossCheck {
		// compute argmin per rows on transposed mat
		matches1 := argMinPerRow(transposeInt(distances))
		// create mask for indices in cross check
		for i := range indices1 {
			if indices1[i] != matches1[indices2[i]] {
				maskIdx[i] = 0
			}
		}
	}
	if cfg.MaxDist > 0 {
		for i := range indices1 {
			if distances[indices1[i]][indices2[i]] >= cfg.MaxDist {
				maskIdx[i] = 0
			}
		}
	}
	// masked indices
	idx1 := make([]int, 0, len(desc1))
	idx2 := make([]int, 0, len(desc1))
	for i := range desc1 {
		if maskIdx[i] == 1 {
			idx1 = append(idx1, indices1[i])
			idx2 = append(idx2, indices2[i])
		}
	}
	// get minimum distances per selected pair of descriptor
	dists := make([]float64, len(idx1))
	for i := range dists {
		dists[i] = float64(distances[idx1[i]][idx2[i]])
	}
	// sort by distance
	sortedIndices := make([]int, len(idx1))
	floats.Argsort(dists, sortedIndices)
	// fill matches
	matches := make([]DescriptorMatch, len(idx1))
	for i, idx := range sortedIndices {
		matches[i] = DescriptorMatch{idx1[idx], idx2[idx]}
	}

	return &DescriptorMatches{matches, desc1, desc2}
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the
// corresponding keypoints that are matched.
func GetMatchingKeyPoints(matches *DescriptorMatches, kps1, kps2 KeyPoints) (KeyPoints, KeyPoints, error) {
	if len(kps1) < len(matches.Indices) {
		return nil, nil, errors.New("there are more matches than keypoints in first set")
	}
	if len(kps2) < len(matches.Indices) {
		return nil, nil, errors.New("there are more matches than keypoints in second set")
	}
	matchedKps1 := make(KeyPoints, len(matches.Indices))
	matchedKps2 := make(KeyPoints, len(matches.Indices))
	for i, match := range matches.Indices {
		matchedKps1[i] = kps1[match.Idx1]
		matchedKps2[i] = kps2[match.Idx2]
	}
	return matchedKps1, matchedKps2, nil
}
