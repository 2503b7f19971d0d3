// Package main is a command that rectifies the dominant planes of a
// wide-baseline image pair and reports matches between the rectified
// regions.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"

	"github.com/planerect/planerect/rimage"
	"github.com/planerect/planerect/rimage/transform"
	"github.com/planerect/planerect/vision/rectification"
)

var logger = golog.NewDevelopmentLogger("planerect")

func main() {
	intrinsicsPath := flag.String("intrinsics", "", "camera intrinsics json (shared by both views)")
	configPath := flag.String("config", "", "pipeline configuration json (optional)")
	outDir := flag.String("out", ".", "output directory for rectified region patches")
	estimatePose := flag.Bool("pose", false, "estimate the relative camera pose from region matches")

	flag.Parse()

	if flag.NArg() < 4 {
		logger.Fatal("need four args <imageA> <depthA> <imageB> <depthB>")
	}
	if *intrinsicsPath == "" {
		logger.Fatal("-intrinsics is required")
	}

	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(*intrinsicsPath)
	if err != nil {
		logger.Fatalw("cannot read intrinsics", "error", err)
	}
	cfg := rectification.DefaultConfig()
	if *configPath != "" {
		loaded, err := rectification.LoadConfiguration(*configPath)
		if err != nil {
			logger.Fatalw("cannot read configuration", "error", err)
		}
		cfg = *loaded
	}

	imgA, depthA := loadView(flag.Arg(0), flag.Arg(1))
	imgB, depthB := loadView(flag.Arg(2), flag.Arg(3))

	rectifier, err := rectification.NewRectifier(cfg, logger)
	if err != nil {
		logger.Fatalw("invalid configuration", "error", err)
	}
	pairs, err := rectifier.Rectify(context.Background(), imgA, imgB, depthA, depthB, intrinsics, intrinsics)
	if err != nil {
		logger.Fatalw("rectification failed", "error", err)
	}
	if len(pairs) == 0 {
		logger.Info("no plane pairs found")
		return
	}

	var allCorrs []rectification.Correspondence
	for i, pair := range pairs {
		logger.Infow("plane pair",
			"rank", i,
			"clusterA", pair.ClusterA.ID, "countA", pair.ClusterA.Count,
			"clusterB", pair.ClusterB.ID, "countB", pair.ClusterB.Count,
			"angularDistanceRad", pair.AngularDistance)
		saveRegion(*outDir, fmt.Sprintf("pair%02d_a.png", i), pair.A.Image)
		saveRegion(*outDir, fmt.Sprintf("pair%02d_b.png", i), pair.B.Image)

		corrs, err := rectification.MatchRegions(
			pair.A, pair.B, imgA.Bounds(), imgB.Bounds(),
			&cfg.Fast, &cfg.Brief, &cfg.Matching, logger)
		if err != nil {
			logger.Warnw("matching failed for pair", "rank", i, "error", err)
			continue
		}
		valid := 0
		for _, c := range corrs {
			if c.Valid {
				valid++
			}
		}
		logger.Infow("matches", "rank", i, "total", len(corrs), "valid", valid)
		allCorrs = append(allCorrs, corrs...)
	}

	if *estimatePose {
		pose, err := rectification.EstimatePose(allCorrs, intrinsics, intrinsics)
		if err != nil {
			logger.Fatalw("pose estimation failed", "error", err)
		}
		logger.Infow("relative pose",
			"rotationRad", pose.RotationAngle(),
			"translationDir", pose.TranslationVector().Normalize())
	}
}

func loadView(imagePath, depthPath string) (*image.Gray, *rimage.DepthMap) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		logger.Fatalw("cannot read image", "path", imagePath, "error", err)
	}
	gray := imaging.Grayscale(img)
	depth, err := rimage.ParseDepthMap(depthPath)
	if err != nil {
		logger.Fatalw("cannot read depth map", "path", depthPath, "error", err)
	}
	return toGray(gray), depth
}

// toGray converts the NRGBA grayscale output of imaging into image.Gray.
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return out
}

func saveRegion(dir, name string, img *image.Gray) {
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		logger.Warnw("cannot save region", "path", path, "error", err)
	}
}
