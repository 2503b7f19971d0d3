package rectification

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/planerect/planerect/rimage"
	"github.com/planerect/planerect/rimage/transform"
	"github.com/planerect/planerect/utils"
	"github.com/planerect/planerect/vision/segmentation"
)

// Rectifier runs the plane rectification pipeline on wide-baseline image
// pairs.
type Rectifier struct {
	cfg    Config
	logger golog.Logger
}

// NewRectifier validates the configuration and returns a Rectifier.
func NewRectifier(cfg Config, logger golog.Logger) (*Rectifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Rectifier{cfg: cfg, logger: logger}, nil
}

// RegionPair is a pair of rectified regions, one per view, whose plane
// orientations were mutually closest across the two images.
type RegionPair struct {
	A, B            *RectifiedRegion
	ClusterA        segmentation.PlaneCluster
	ClusterB        segmentation.PlaneCluster
	AngularDistance float64
}

// sideRegion is the per-view outcome for one plane cluster.
type sideRegion struct {
	cluster segmentation.PlaneCluster
	region  *RectifiedRegion
}

// Rectify runs the full pipeline. Each view goes from depth to normals to
// plane clusters to per-plane homographies to bounded warps; then clusters
// are paired across views by mutual nearest centroid orientation. Clusters whose
// geometry is degenerate or whose warp exceeds the canvas cap under the
// reject policy are skipped with a log line; an empty result is a valid
// outcome, not an error.
func (r *Rectifier) Rectify(
	ctx context.Context,
	imgA, imgB *image.Gray,
	depthA, depthB *rimage.DepthMap,
	intrinsicsA, intrinsicsB *transform.PinholeCameraIntrinsics,
) ([]RegionPair, error) {
	if imgA == nil || imgB == nil {
		return nil, errors.New("both images are required")
	}
	sidesA, err := r.rectifySide(ctx, imgA, depthA, intrinsicsA)
	if err != nil {
		return nil, errors.Wrap(err, "first view")
	}
	sidesB, err := r.rectifySide(ctx, imgB, depthB, intrinsicsB)
	if err != nil {
		return nil, errors.Wrap(err, "second view")
	}
	return pairRegions(sidesA, sidesB), nil
}

// rectifySide produces the rectified regions of a single view.
func (r *Rectifier) rectifySide(
	ctx context.Context,
	img *image.Gray,
	depth *rimage.DepthMap,
	intrinsics *transform.PinholeCameraIntrinsics,
) ([]sideRegion, error) {
	if depth == nil || !depth.HasData() {
		return nil, errors.New("depth map is required")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	imgW, imgH := img.Bounds().Dx(), img.Bounds().Dy()
	depthIntrinsics := scaleIntrinsics(intrinsics, imgW, imgH, depth.Width(), depth.Height())

	normals, err := transform.DepthMapToNormalField(depth, depthIntrinsics, r.cfg.NeighborhoodMode)
	if err != nil {
		return nil, err
	}
	clusters, labels, err := segmentation.ClusterNormals(normals, r.cfg.Clusters, r.logger)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, nil
	}
	regions, refined, err := segmentation.ExtractPlaneRegions(labels, len(clusters), r.cfg.Components)
	if err != nil {
		return nil, err
	}
	// labels are computed at depth resolution; bring them up to image
	// resolution so source regions are cut in image coordinates
	imgLabels, err := segmentation.UpsampleLabels(refined, imgW, imgH)
	if err != nil {
		return nil, err
	}

	results := make([]sideRegion, len(clusters))
	kept := make([]bool, len(clusters))
	tasks := make([]utils.SimpleFunc, 0, len(clusters))
	for _, cluster := range clusters {
		cluster := cluster
		tasks = append(tasks, func(_ context.Context) error {
			region, err := r.rectifyCluster(img, depth, refined, imgLabels, regions, cluster, intrinsics)
			if err != nil {
				if errors.Is(err, ErrDegenerateGeometry) || errors.Is(err, ErrResourceBound) {
					r.logger.Debugw("skipping plane cluster", "cluster", cluster.ID, "error", err)
					return nil
				}
				return err
			}
			if region != nil {
				results[cluster.ID] = sideRegion{cluster: cluster, region: region}
				kept[cluster.ID] = true
			}
			return nil
		})
	}
	if _, err := utils.RunInParallel(ctx, tasks); err != nil {
		return nil, err
	}

	out := make([]sideRegion, 0, len(clusters))
	for i := range results {
		if kept[i] {
			out = append(out, results[i])
		}
	}
	return out, nil
}

// rectifyCluster warps one plane cluster to a fronto-parallel view. labels
// holds the cluster membership at depth resolution (for the plane distance),
// imgLabels the same membership upsampled to image resolution (for the
// source region).
func (r *Rectifier) rectifyCluster(
	img *image.Gray,
	depth *rimage.DepthMap,
	labels, imgLabels *segmentation.ClusterLabels,
	regions []segmentation.PlaneRegion,
	cluster segmentation.PlaneCluster,
	intrinsics *transform.PinholeCameraIntrinsics,
) (*RectifiedRegion, error) {
	if _, ok := clusterBounds(regions, cluster.ID); !ok {
		// every component of the cluster fell under the area floor
		return nil, nil
	}

	distance, ok := clusterPlaneDistance(depth, labels, cluster.ID)
	if !ok {
		return nil, errors.Wrapf(ErrDegenerateGeometry, "cluster %d has no valid member depths", cluster.ID)
	}

	homography, err := transform.SynthesizeRectifyingHomography(intrinsics, cluster.Center, distance, r.cfg.Gates)
	if err != nil {
		return nil, err
	}

	source, ok := labelBounds(imgLabels, cluster.ID)
	if !ok {
		return nil, nil
	}
	return WarpBounded(
		img, source, homography, cluster.ID,
		r.cfg.MaxOutputDimensionPx, r.cfg.Interpolation, r.cfg.BoundPolicy,
	)
}

// clusterPlaneDistance is the median valid member depth of the cluster, up
// to the depth map's unknown scale.
func clusterPlaneDistance(depth *rimage.DepthMap, labels *segmentation.ClusterLabels, clusterID int) (float64, bool) {
	var depths []float64
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			if labels.Get(x, y) != clusterID {
				continue
			}
			if d := depth.GetDepth(x, y); rimage.ValidDepth(d) {
				depths = append(depths, d)
			}
		}
	}
	if len(depths) == 0 {
		return 0, false
	}
	return utils.Median(depths...), true
}

// clusterBounds is the union of the component bounding boxes of the cluster.
func clusterBounds(regions []segmentation.PlaneRegion, clusterID int) (image.Rectangle, bool) {
	var bounds image.Rectangle
	found := false
	for _, region := range regions {
		if region.Label != clusterID {
			continue
		}
		if !found {
			bounds = region.Bounds
			found = true
		} else {
			bounds = bounds.Union(region.Bounds)
		}
	}
	return bounds, found
}

// scaleIntrinsics rescales pinhole parameters from the image resolution to
// the depth map resolution.
func scaleIntrinsics(intrinsics *transform.PinholeCameraIntrinsics, imgW, imgH, depthW, depthH int) *transform.PinholeCameraIntrinsics {
	if imgW == depthW && imgH == depthH {
		return intrinsics
	}
	sx := float64(depthW) / float64(imgW)
	sy := float64(depthH) / float64(imgH)
	return &transform.PinholeCameraIntrinsics{
		Width:  depthW,
		Height: depthH,
		Fx:     intrinsics.Fx * sx,
		Fy:     intrinsics.Fy * sy,
		Ppx:    intrinsics.Ppx * sx,
		Ppy:    intrinsics.Ppy * sy,
	}
}

// labelBounds is the bounding box of the pixels carrying the given label.
func labelBounds(labels *segmentation.ClusterLabels, label int) (image.Rectangle, bool) {
	var bounds image.Rectangle
	found := false
	for y := 0; y < labels.Height(); y++ {
		for x := 0; x < labels.Width(); x++ {
			if labels.Get(x, y) != label {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if !found {
				bounds = px
				found = true
			} else {
				bounds = bounds.Union(px)
			}
		}
	}
	return bounds, found
}

// pairRegions matches clusters across the two views by mutual nearest
// centroid orientation, ordering the pairs by descending combined member
// count. Unmatched clusters are dropped.
func pairRegions(sidesA, sidesB []sideRegion) []RegionPair {
	if len(sidesA) == 0 || len(sidesB) == 0 {
		return nil
	}
	sphere := segmentation.Sphere{}
	nearestB := make([]int, len(sidesA))
	for i, a := range sidesA {
		best, bestDist := -1, math.Inf(1)
		for j, b := range sidesB {
			if d := sphere.Distance(a.cluster.Center, b.cluster.Center); d < bestDist {
				best, bestDist = j, d
			}
		}
		nearestB[i] = best
	}
	nearestA := make([]int, len(sidesB))
	for j, b := range sidesB {
		best, bestDist := -1, math.Inf(1)
		for i, a := range sidesA {
			if d := sphere.Distance(b.cluster.Center, a.cluster.Center); d < bestDist {
				best, bestDist = i, d
			}
		}
		nearestA[j] = best
	}

	var pairs []RegionPair
	for i, j := range nearestB {
		if j < 0 || nearestA[j] != i {
			continue
		}
		a, b := sidesA[i], sidesB[j]
		pairs = append(pairs, RegionPair{
			A:               a.region,
			B:               b.region,
			ClusterA:        a.cluster,
			ClusterB:        b.cluster,
			AngularDistance: sphere.Distance(a.cluster.Center, b.cluster.Center),
		})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		ci := pairs[i].ClusterA.Count + pairs[i].ClusterB.Count
		cj := pairs[j].ClusterA.Count + pairs[j].ClusterB.Count
		if ci != cj {
			return ci > cj
		}
		return pairs[i].ClusterA.ID < pairs[j].ClusterA.ID
	})
	return pairs
}
