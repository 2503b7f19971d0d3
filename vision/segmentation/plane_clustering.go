package segmentation

import (
	"image"
	"math/rand"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/planerect/planerect/rimage"
	"github.com/planerect/planerect/utils"
)

// ResidualLabel marks a pixel that belongs to no plane cluster: invalid
// normals, and normals filtered out for deviating too far from every
// centroid (sky and other non-planar structure).
const ResidualLabel = -1

// PlaneCluster is one dominant plane orientation found in a normal field.
type PlaneCluster struct {
	// ID indexes the cluster within a clustering run; clusters are numbered
	// by descending member count.
	ID int
	// Center is the unit normal of the cluster centroid.
	Center r3.Vector
	// Count is the number of member pixels after outlier filtering.
	Count int
}

// ClusterLabels maps every pixel of the source normal field to a cluster ID
// or ResidualLabel. Membership is exclusive.
type ClusterLabels struct {
	width  int
	height int
	labels []int
}

// NewClusterLabels returns an all-residual label map.
func NewClusterLabels(width, height int) *ClusterLabels {
	labels := make([]int, width*height)
	for i := range labels {
		labels[i] = ResidualLabel
	}
	return &ClusterLabels{width: width, height: height, labels: labels}
}

// Width returns the label map width.
func (cl *ClusterLabels) Width() int { return cl.width }

// Height returns the label map height.
func (cl *ClusterLabels) Height() int { return cl.height }

// Get returns the cluster ID at (x,y), or ResidualLabel.
func (cl *ClusterLabels) Get(x, y int) int {
	return cl.labels[y*cl.width+x]
}

// Set writes the cluster ID at (x,y).
func (cl *ClusterLabels) Set(x, y, label int) {
	cl.labels[y*cl.width+x] = label
}

// CountLabel returns the number of pixels carrying the given label.
func (cl *ClusterLabels) CountLabel(label int) int {
	count := 0
	for _, l := range cl.labels {
		if l == label {
			count++
		}
	}
	return count
}

// ClustersConfig parameterizes plane clustering.
type ClustersConfig struct {
	// K fixes the number of clusters; 0 selects it automatically in [2, MaxK].
	K int `json:"k"`
	// MaxK bounds automatic cluster count selection.
	MaxK int `json:"max_k"`
	// AngleThresholdDeg discards members farther than this angle from their
	// centroid into the residual set.
	AngleThresholdDeg float64 `json:"angle_threshold_deg"`
	// MaxIterations bounds each k-means run.
	MaxIterations int `json:"max_iterations"`
	// SpiralCandidates is the size of the sphere covering used for seeding.
	SpiralCandidates int `json:"spiral_candidates"`
	// MinSupportFraction is the fraction of valid normals a seed candidate
	// must attract to be considered.
	MinSupportFraction float64 `json:"min_support_fraction"`
	// Seed drives the fallback random seeding, for determinism.
	Seed int64 `json:"seed"`
	// Selector chooses k in auto mode; nil uses ElbowSelector.
	Selector ModelSelector `json:"-"`
}

// DefaultClustersConfig returns the defaults used by the rectification
// pipeline.
func DefaultClustersConfig() ClustersConfig {
	return ClustersConfig{
		K:                  0,
		MaxK:               3,
		AngleThresholdDeg:  80,
		MaxIterations:      20,
		SpiralCandidates:   300,
		MinSupportFraction: 0.05,
		Seed:               1,
	}
}

// Validate checks the configuration bounds.
func (cfg *ClustersConfig) Validate() error {
	if cfg.K < 0 {
		return errors.New("k must be >= 0")
	}
	if cfg.K == 0 && cfg.MaxK < 2 {
		return errors.New("max_k must be >= 2 for automatic cluster count")
	}
	if cfg.AngleThresholdDeg <= 0 || cfg.AngleThresholdDeg > 180 {
		return errors.New("angle_threshold_deg must be in (0, 180]")
	}
	if cfg.MaxIterations < 1 {
		return errors.New("max_iterations must be >= 1")
	}
	return nil
}

// clusterRun is one candidate clustering for model selection.
type clusterRun struct {
	k        int
	result   *KMeansResult
	variance float64
}

// ModelSelector picks the cluster count in auto mode from candidate runs
// ordered by increasing k. The exact criterion is a tunable, not a fixed
// law; implementations must break ties toward fewer clusters.
type ModelSelector interface {
	Select(variances []float64) int
}

// ElbowSelector keeps adding clusters while each addition reduces the
// within-cluster angular variance by at least MinGain (relative).
type ElbowSelector struct {
	MinGain float64
}

// Select returns the index of the chosen run.
func (s ElbowSelector) Select(variances []float64) int {
	minGain := s.MinGain
	if minGain <= 0 {
		minGain = 0.25
	}
	chosen := 0
	for i := 1; i < len(variances); i++ {
		if variances[chosen] <= 0 {
			break
		}
		gain := (variances[chosen] - variances[i]) / variances[chosen]
		if gain < minGain {
			break
		}
		chosen = i
	}
	return chosen
}

// ClusterNormals groups the valid normals of a field into dominant plane
// orientation clusters with spherical k-means. It returns the clusters in
// descending member count order, plus a label map in which filtered and
// invalid pixels carry ResidualLabel. Degenerate inputs (no valid normals,
// fewer normals than k) reduce the cluster count instead of erroring; the
// result may be empty. The run is deterministic for a fixed config.
func ClusterNormals(
	nf *rimage.NormalField,
	cfg ClustersConfig,
	logger golog.Logger,
) ([]PlaneCluster, *ClusterLabels, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	labels := NewClusterLabels(nf.Width(), nf.Height())

	var points []r3.Vector
	var pixels []image.Point
	nf.EachValid(func(x, y int, n r3.Vector) {
		points = append(points, n)
		pixels = append(pixels, image.Point{x, y})
	})
	if len(points) == 0 {
		logger.Debug("no valid normals, returning zero clusters")
		return nil, labels, nil
	}

	sphere := Sphere{}
	runs := candidateRuns(sphere, points, cfg)
	if len(runs) == 0 {
		return nil, labels, nil
	}
	chosen := runs[0]
	if len(runs) > 1 {
		selector := cfg.Selector
		if selector == nil {
			selector = ElbowSelector{}
		}
		variances := make([]float64, len(runs))
		for i, run := range runs {
			variances[i] = run.variance
		}
		chosen = runs[selector.Select(variances)]
	}
	logger.Debugf("clustered %d normals into k=%d in %d iterations",
		len(points), chosen.k, chosen.result.Iterations)

	return buildClusters(sphere, chosen.result, points, pixels, labels, cfg)
}

// candidateRuns produces the k-means runs model selection chooses from: a
// single run for fixed k, or one per candidate k in [2, MaxK] in auto mode.
func candidateRuns(sphere Sphere, points []r3.Vector, cfg ClustersConfig) []clusterRun {
	var ks []int
	if cfg.K > 0 {
		ks = []int{utils.MinInt(cfg.K, len(points))}
	} else {
		for k := 2; k <= cfg.MaxK; k++ {
			ks = append(ks, utils.MinInt(k, len(points)))
		}
	}
	seen := make(map[int]bool)
	var runs []clusterRun
	for _, k := range ks {
		if k < 1 || seen[k] {
			continue
		}
		seen[k] = true
		centers := seedCenters(sphere, points, k, cfg)
		result := RunKMeans(sphere, points, centers, cfg.MaxIterations)
		runs = append(runs, clusterRun{
			k:        k,
			result:   result,
			variance: withinClusterVariance(sphere, result, points),
		})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].k < runs[j].k })
	return runs
}

// seedCenters picks k initial centroids deterministically: spiral sphere
// covering candidates ranked by how many normals fall within the angular
// threshold, greedily separated by twice the threshold. If the covering
// yields fewer than k supported candidates, the remainder is drawn from the
// input normals with a fixed-seed generator.
func seedCenters(sphere Sphere, points []r3.Vector, k int, cfg ClustersConfig) []r3.Vector {
	candidates := SpherePoints(utils.MaxInt(cfg.SpiralCandidates, k))
	threshold := utils.DegToRad(cfg.AngleThresholdDeg) / 2
	minSupport := int(cfg.MinSupportFraction * float64(len(points)))

	type support struct {
		center r3.Vector
		count  int
	}
	supports := make([]support, len(candidates))
	for i, c := range candidates {
		count := 0
		for _, p := range points {
			if sphere.Distance(c, p) < threshold {
				count++
			}
		}
		supports[i] = support{center: c, count: count}
	}
	sort.SliceStable(supports, func(i, j int) bool { return supports[i].count > supports[j].count })

	var centers []r3.Vector
	for _, s := range supports {
		if len(centers) >= k || s.count < minSupport {
			break
		}
		farEnough := true
		for _, c := range centers {
			if sphere.Distance(s.center, c) < 2*threshold {
				farEnough = false
				break
			}
		}
		if farEnough {
			centers = append(centers, s.center)
		}
	}
	// not enough supported candidates; fall back to sampling input normals
	r := rand.New(rand.NewSource(cfg.Seed))
	for len(centers) < k {
		centers = append(centers, points[utils.SampleRandomIntRange(0, len(points)-1, r)])
	}
	return centers
}

// withinClusterVariance is the mean squared angular distance of every point
// to its centroid.
func withinClusterVariance(sphere Sphere, result *KMeansResult, points []r3.Vector) float64 {
	if len(points) == 0 {
		return 0
	}
	total := 0.0
	for i, p := range points {
		d := sphere.Distance(p, result.Centers[result.Assignments[i]])
		total += d * d
	}
	return total / float64(len(points))
}

// buildClusters applies the angular outlier filter, renumbers clusters by
// descending member count and fills the label map.
func buildClusters(
	sphere Sphere,
	result *KMeansResult,
	points []r3.Vector,
	pixels []image.Point,
	labels *ClusterLabels,
	cfg ClustersConfig,
) ([]PlaneCluster, *ClusterLabels, error) {
	threshold := utils.DegToRad(cfg.AngleThresholdDeg)
	counts := make([]int, len(result.Centers))
	kept := make([]int, len(points))
	for i, p := range points {
		c := result.Assignments[i]
		if c < 0 || sphere.Distance(p, result.Centers[c]) > threshold {
			kept[i] = ResidualLabel
			continue
		}
		kept[i] = c
		counts[c]++
	}

	order := make([]int, len(result.Centers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	newID := make([]int, len(result.Centers))
	var clusters []PlaneCluster
	for rank, c := range order {
		if counts[c] == 0 {
			newID[c] = ResidualLabel
			continue
		}
		newID[c] = rank
		clusters = append(clusters, PlaneCluster{
			ID:     rank,
			Center: result.Centers[c],
			Count:  counts[c],
		})
	}
	for i, label := range kept {
		if label == ResidualLabel {
			continue
		}
		if id := newID[label]; id != ResidualLabel {
			labels.Set(pixels[i].X, pixels[i].Y, id)
		}
	}
	return clusters, labels, nil
}
