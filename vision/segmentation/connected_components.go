package segmentation

import (
	"image"

	"github.com/pkg/errors"
)

// ComponentsConfig parameterizes the refinement of a cluster label map into
// contiguous plane regions.
type ComponentsConfig struct {
	// Connectivity is 4 or 8.
	Connectivity int `json:"connectivity"`
	// MinAreaFraction drops components smaller than this fraction of the
	// image area.
	MinAreaFraction float64 `json:"min_area_fraction"`
	// ClosingRadius closes gaps in each cluster mask before component
	// extraction; 0 disables morphology.
	ClosingRadius int `json:"closing_radius"`
}

// DefaultComponentsConfig returns the defaults used by the rectification
// pipeline.
func DefaultComponentsConfig() ComponentsConfig {
	return ComponentsConfig{
		Connectivity:    4,
		MinAreaFraction: 0.03,
		ClosingRadius:   1,
	}
}

// Validate checks the configuration bounds.
func (cfg *ComponentsConfig) Validate() error {
	if cfg.Connectivity != 4 && cfg.Connectivity != 8 {
		return errors.Errorf("connectivity must be 4 or 8, got %d", cfg.Connectivity)
	}
	if cfg.MinAreaFraction < 0 || cfg.MinAreaFraction >= 1 {
		return errors.New("min_area_fraction must be in [0, 1)")
	}
	if cfg.ClosingRadius < 0 {
		return errors.New("closing_radius must be >= 0")
	}
	return nil
}

// PlaneRegion is one contiguous component of a plane cluster.
type PlaneRegion struct {
	// Label is the cluster ID the region belongs to.
	Label int
	// Area is the pixel count of the component.
	Area int
	// Bounds is the bounding box of the component.
	Bounds image.Rectangle
}

// ExtractPlaneRegions splits every cluster of the label map into connected
// components and keeps the ones large enough to rectify. It returns the
// kept regions and a refined label map in which pixels of discarded
// components carry ResidualLabel. The input map is not modified.
func ExtractPlaneRegions(labels *ClusterLabels, numClusters int, cfg ComponentsConfig) ([]PlaneRegion, *ClusterLabels, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	w, h := labels.Width(), labels.Height()
	refined := NewClusterLabels(w, h)
	minArea := int(cfg.MinAreaFraction * float64(w*h))

	var regions []PlaneRegion
	for label := 0; label < numClusters; label++ {
		mask := maskForLabel(labels, label)
		if cfg.ClosingRadius > 0 {
			mask = closeMask(mask, w, h, cfg.ClosingRadius)
			// closing must not annex pixels already owned by another cluster
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					if l := labels.Get(x, y); l != label && l != ResidualLabel {
						mask[y*w+x] = false
					}
				}
			}
		}
		for _, comp := range components(mask, w, h, cfg.Connectivity) {
			if len(comp) < minArea {
				continue
			}
			bounds := image.Rectangle{Min: comp[0], Max: comp[0].Add(image.Point{1, 1})}
			for _, pt := range comp {
				refined.Set(pt.X, pt.Y, label)
				bounds = bounds.Union(image.Rectangle{Min: pt, Max: pt.Add(image.Point{1, 1})})
			}
			regions = append(regions, PlaneRegion{Label: label, Area: len(comp), Bounds: bounds})
		}
	}
	return regions, refined, nil
}

func maskForLabel(labels *ClusterLabels, label int) []bool {
	w, h := labels.Width(), labels.Height()
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask[y*w+x] = labels.Get(x, y) == label
		}
	}
	return mask
}

// closeMask applies a morphological closing (dilation then erosion) with a
// square structuring element of the given radius.
func closeMask(mask []bool, w, h, radius int) []bool {
	return erodeMask(dilateMask(mask, w, h, radius), w, h, radius)
}

func dilateMask(mask []bool, w, h, radius int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] {
				for dy := -radius; dy <= radius; dy++ {
					for dx := -radius; dx <= radius; dx++ {
						nx, ny := x+dx, y+dy
						if nx >= 0 && nx < w && ny >= 0 && ny < h {
							out[ny*w+nx] = true
						}
					}
				}
			}
		}
	}
	return out
}

func erodeMask(mask []bool, w, h, radius int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
	next:
		for x := 0; x < w; x++ {
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					// pixels outside the image count as set so closing
					// never erodes the original mask at the borders
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					if !mask[ny*w+nx] {
						continue next
					}
				}
			}
			out[y*w+x] = true
		}
	}
	return out
}

// components flood-fills the mask and returns the pixel lists of its
// connected components.
func components(mask []bool, w, h, connectivity int) [][]image.Point {
	neighbors := []image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	if connectivity == 8 {
		neighbors = append(neighbors,
			image.Point{1, 1}, image.Point{1, -1}, image.Point{-1, 1}, image.Point{-1, -1})
	}
	visited := make([]bool, len(mask))
	var result [][]image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !mask[idx] || visited[idx] {
				continue
			}
			var comp []image.Point
			queue := []image.Point{{x, y}}
			visited[idx] = true
			for len(queue) > 0 {
				pt := queue[0]
				queue = queue[1:]
				comp = append(comp, pt)
				for _, d := range neighbors {
					nx, ny := pt.X+d.X, pt.Y+d.Y
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nIdx := ny*w + nx
					if mask[nIdx] && !visited[nIdx] {
						visited[nIdx] = true
						queue = append(queue, image.Point{nx, ny})
					}
				}
			}
			result = append(result, comp)
		}
	}
	return result
}
