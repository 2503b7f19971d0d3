package rectification

import (
	"image"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/planerect/planerect/rimage/transform"
	"github.com/planerect/planerect/vision/keypoints"
)

// minPoseCorrespondences is the 8-point algorithm floor.
const minPoseCorrespondences = 8

// Correspondence is a pair of matched points expressed in the original
// coordinates of both source images. Valid is false when either back-mapped
// point lands outside its image; such pairs are kept for bookkeeping but
// never fed to pose estimation.
type Correspondence struct {
	A     r2.Point
	B     r2.Point
	Valid bool
}

// MatchRegions detects and matches keypoints between two rectified regions
// and back-maps the matches into the original image coordinates. Matching in
// the rectified frame is what makes wide-baseline pairs tractable; the
// correspondences themselves always refer to the source images.
func MatchRegions(
	regA, regB *RectifiedRegion,
	boundsA, boundsB image.Rectangle,
	fastCfg *keypoints.FASTConfig,
	briefCfg *keypoints.BRIEFConfig,
	matchCfg *keypoints.MatchingConfig,
	logger golog.Logger,
) ([]Correspondence, error) {
	kpsA := keypoints.NewFASTKeypointsFromImage(regA.Image, fastCfg)
	kpsB := keypoints.NewFASTKeypointsFromImage(regB.Image, fastCfg)
	if len(kpsA.Points) == 0 || len(kpsB.Points) == 0 {
		return nil, nil
	}
	sp := keypoints.GenerateSamplePairs(briefCfg.Sampling, briefCfg.N, briefCfg.PatchSize)
	descA, err := keypoints.ComputeBRIEFDescriptors(regA.Image, sp, kpsA, briefCfg)
	if err != nil {
		return nil, err
	}
	descB, err := keypoints.ComputeBRIEFDescriptors(regB.Image, sp, kpsB, briefCfg)
	if err != nil {
		return nil, err
	}
	matches := keypoints.MatchDescriptors(descA, descB, matchCfg, logger)
	if matches == nil {
		return nil, nil
	}
	matchedA, matchedB, err := keypoints.GetMatchingKeyPoints(matches, kpsA.Points, kpsB.Points)
	if err != nil {
		return nil, err
	}

	corrs := make([]Correspondence, len(matchedA))
	for i := range matchedA {
		pA, okA := regA.BackMap(r2.Point{X: float64(matchedA[i].X), Y: float64(matchedA[i].Y)}, boundsA)
		pB, okB := regB.BackMap(r2.Point{X: float64(matchedB[i].X), Y: float64(matchedB[i].Y)}, boundsB)
		corrs[i] = Correspondence{A: pA, B: pB, Valid: okA && okB}
	}
	return corrs, nil
}

// EstimatePose recovers the relative camera pose from valid correspondences
// with the normalized 8-point algorithm and cheirality disambiguation. The
// translation is known up to scale only.
func EstimatePose(
	corrs []Correspondence,
	intrinsicsA, intrinsicsB *transform.PinholeCameraIntrinsics,
) (*transform.CamPose, error) {
	if err := intrinsicsA.CheckValid(); err != nil {
		return nil, err
	}
	if err := intrinsicsB.CheckValid(); err != nil {
		return nil, err
	}
	var ptsA, ptsB []r2.Point
	for _, c := range corrs {
		if !c.Valid {
			continue
		}
		ptsA = append(ptsA, c.A)
		ptsB = append(ptsB, c.B)
	}
	if len(ptsA) < minPoseCorrespondences {
		return nil, errors.Errorf("pose estimation needs at least %d valid correspondences, have %d",
			minPoseCorrespondences, len(ptsA))
	}
	return transform.EstimateNewPose(ptsA, ptsB, intrinsicsA.GetCameraMatrix(), intrinsicsB.GetCameraMatrix())
}
