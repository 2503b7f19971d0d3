package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestRangeInt(t *testing.T) {
	logger := golog.NewTestLogger(t)
	u1, l1 := 2, 9
	rng1 := rangeInt(u1, l1, 1, logger)
	test.That(t, rng1, test.ShouldResemble, []int{2, 3, 4, 5, 6, 7, 8})
	u2, l2 := 0, 10
	rng2 := rangeInt(u2, l2, 2, logger)
	test.That(t, rng2, test.ShouldResemble, []int{0, 2, 4, 6, 8})
}

func TestMatchingConfigValidate(t *testing.T) {
	cfg := MatchingConfig{DoCrossCheck: true, MaxDist: 70}
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	// MaxDist 0 disables the distance cut
	cfg.MaxDist = 0
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	cfg.MaxDist = -1
	test.That(t, cfg.Validate(), test.ShouldNotBeNil)
}

func TestHammingDistance(t *testing.T) {
	test.That(t, hammingDistance(Descriptor{0}, Descriptor{0}), test.ShouldEqual, 0)
	test.That(t, hammingDistance(Descriptor{0b1011}, Descriptor{0b0010}), test.ShouldEqual, 2)
	test.That(t, hammingDistance(Descriptor{0, ^uint64(0)}, Descriptor{0, 0}), test.ShouldEqual, 64)
	// length mismatch
	test.That(t, hammingDistance(Descriptor{0}, Descriptor{0, 0}), test.ShouldEqual, -1)
}

func TestArgMinPerRow(t *testing.T) {
	m := [][]int{
		{3, 1, 2},
		{0, 5, 9},
	}
	test.That(t, argMinPerRow(m), test.ShouldResemble, []int{1, 0})
	test.That(t, argMinPerRow(transposeInt(m)), test.ShouldResemble, []int{1, 0, 0})
}

// translatedTestImage shifts the white rectangle of createTestImage by (dx,dy).
func translatedTestImage(dx, dy int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50+dx, 30+dy, 100+dx, 150+dy)
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{0}}, image.Point{}, draw.Src)
	draw.Draw(img, whiteRect, &image.Uniform{color.Gray{255}}, image.Point{}, draw.Src)
	return img
}

func TestMatchDescriptorsSameImage(t *testing.T) {
	logger := golog.NewTestLogger(t)
	img := createTestImage()
	fastCfg := LoadFASTConfiguration("kpconfig.json")
	test.That(t, fastCfg, test.ShouldNotBeNil)
	fastCfg.Oriented = false
	kps := NewFASTKeypointsFromImage(img, fastCfg)

	briefCfg := &BRIEFConfig{N: 128, Sampling: normal, UseOrientation: false, PatchSize: 16}
	sp := GenerateSamplePairs(briefCfg.Sampling, briefCfg.N, briefCfg.PatchSize)
	descs, err := ComputeBRIEFDescriptors(img, sp, kps, briefCfg)
	test.That(t, err, test.ShouldBeNil)

	matches := MatchDescriptors(descs, descs, &MatchingConfig{DoCrossCheck: true, MaxDist: 70}, logger)
	test.That(t, matches, test.ShouldNotBeNil)
	test.That(t, len(matches.Indices), test.ShouldEqual, len(descs))
	for _, m := range matches.Indices {
		test.That(t, m.Idx2, test.ShouldEqual, m.Idx1)
	}
}

func TestMatchDescriptorsTranslated(t *testing.T) {
	logger := golog.NewTestLogger(t)
	imgA := createTestImage()
	imgB := translatedTestImage(10, 5)

	fastCfg := LoadFASTConfiguration("kpconfig.json")
	test.That(t, fastCfg, test.ShouldNotBeNil)
	fastCfg.Oriented = false
	kpsA := NewFASTKeypointsFromImage(imgA, fastCfg)
	kpsB := NewFASTKeypointsFromImage(imgB, fastCfg)
	test.That(t, len(kpsB.Points), test.ShouldEqual, len(kpsA.Points))

	briefCfg := &BRIEFConfig{N: 128, Sampling: normal, UseOrientation: false, PatchSize: 16}
	sp := GenerateSamplePairs(briefCfg.Sampling, briefCfg.N, briefCfg.PatchSize)
	descsA, err := ComputeBRIEFDescriptors(imgA, sp, kpsA, briefCfg)
	test.That(t, err, test.ShouldBeNil)
	descsB, err := ComputeBRIEFDescriptors(imgB, sp, kpsB, briefCfg)
	test.That(t, err, test.ShouldBeNil)

	matches := MatchDescriptors(descsA, descsB, &MatchingConfig{DoCrossCheck: true, MaxDist: 70}, logger)
	test.That(t, matches, test.ShouldNotBeNil)
	test.That(t, len(matches.Indices), test.ShouldEqual, len(descsA))

	matchedA, matchedB, err := GetMatchingKeyPoints(matches, kpsA.Points, kpsB.Points)
	test.That(t, err, test.ShouldBeNil)
	for i := range matchedA {
		test.That(t, matchedB[i], test.ShouldResemble, matchedA[i].Add(image.Point{10, 5}))
	}
}

func TestMatchDescriptorsDegenerate(t *testing.T) {
	logger := golog.NewTestLogger(t)
	matches := MatchDescriptors(nil, nil, &MatchingConfig{}, logger)
	test.That(t, matches, test.ShouldBeNil)
	// mismatched descriptor lengths
	matches = MatchDescriptors(Descriptors{{0}}, Descriptors{{0, 0}}, &MatchingConfig{}, logger)
	test.That(t, matches, test.ShouldBeNil)
}
