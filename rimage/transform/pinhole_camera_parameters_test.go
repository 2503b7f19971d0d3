package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func testIntrinsics() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  100,
		Height: 100,
		Fx:     50,
		Fy:     50,
		Ppx:    50,
		Ppy:    50,
	}
}

func TestCheckValid(t *testing.T) {
	test.That(t, testIntrinsics().CheckValid(), test.ShouldBeNil)

	var nilParams *PinholeCameraIntrinsics
	err := nilParams.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	bad := testIntrinsics()
	bad.Fx = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
	bad = testIntrinsics()
	bad.Width = -1
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)
}

func TestPixelRoundTrip(t *testing.T) {
	params := testIntrinsics()
	x, y, z := params.PixelToPoint(70, 30, 2.5)
	test.That(t, z, test.ShouldAlmostEqual, 2.5)
	px, py := params.PointToPixel(x, y, z)
	test.That(t, px, test.ShouldAlmostEqual, 70)
	test.That(t, py, test.ShouldAlmostEqual, 30)

	// zero depth projects out of frame
	px, py = params.PointToPixel(1, 1, 0)
	test.That(t, px, test.ShouldEqual, -1.0)
	test.That(t, py, test.ShouldEqual, -1.0)
}

func TestViewRay(t *testing.T) {
	params := testIntrinsics()
	center := params.ViewRay(50, 50)
	test.That(t, center.Norm(), test.ShouldAlmostEqual, 1)
	test.That(t, center.Z, test.ShouldAlmostEqual, 1)

	offAxis := params.ViewRay(0, 50)
	test.That(t, offAxis.Norm(), test.ShouldAlmostEqual, 1)
	test.That(t, offAxis.X, test.ShouldBeLessThan, 0)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "intrinsics.json")
	data := []byte(`{"width_px": 640, "height_px": 480, "fx": 500, "fy": 501, "ppx": 320, "ppy": 240}`)
	test.That(t, os.WriteFile(fn, data, 0o600), test.ShouldBeNil)

	params, err := NewPinholeCameraIntrinsicsFromJSONFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Width, test.ShouldEqual, 640)
	test.That(t, params.Fy, test.ShouldAlmostEqual, 501)

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
