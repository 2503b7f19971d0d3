package utils

import (
	"context"
	"image"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestParallelForEachPixel(t *testing.T) {
	size := image.Point{113, 67}
	var count int64
	ParallelForEachPixel(size, func(x, y int) {
		atomic.AddInt64(&count, 1)
	})
	test.That(t, count, test.ShouldEqual, int64(size.X*size.Y))
}

func TestRunInParallel(t *testing.T) {
	var sum int64
	fs := []SimpleFunc{}
	for i := 1; i <= 10; i++ {
		i := i
		fs = append(fs, func(ctx context.Context) error {
			atomic.AddInt64(&sum, int64(i))
			return nil
		})
	}
	_, err := RunInParallel(context.Background(), fs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sum, test.ShouldEqual, int64(55))
}

func TestRunInParallelError(t *testing.T) {
	boom := errors.New("boom")
	fs := []SimpleFunc{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
	}
	_, err := RunInParallel(context.Background(), fs)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
}

func TestRunInParallelPanic(t *testing.T) {
	fs := []SimpleFunc{
		func(ctx context.Context) error { panic("eek") },
	}
	_, err := RunInParallel(context.Background(), fs)
	test.That(t, err, test.ShouldNotBeNil)
}
