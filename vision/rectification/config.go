package rectification

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"

	"github.com/planerect/planerect/rimage/transform"
	"github.com/planerect/planerect/vision/keypoints"
	"github.com/planerect/planerect/vision/segmentation"
)

// Interpolation selects how the warper samples the source image.
type Interpolation string

// Supported interpolations.
const (
	NearestInterpolation  = Interpolation("nearest")
	BilinearInterpolation = Interpolation("bilinear")
)

// BoundPolicy selects what happens when a projected warp exceeds the canvas
// cap.
type BoundPolicy string

// Supported bound policies.
const (
	// ClipPolicy shrinks the source region until its projection fits.
	ClipPolicy = BoundPolicy("clip")
	// RejectPolicy refuses the warp with ErrResourceBound.
	RejectPolicy = BoundPolicy("reject")
)

// Config parameterizes the whole rectification pipeline.
type Config struct {
	NeighborhoodMode     transform.NeighborhoodMode    `json:"neighborhood_mode"`
	Clusters             segmentation.ClustersConfig   `json:"clusters"`
	Components           segmentation.ComponentsConfig `json:"components"`
	Gates                transform.SynthesisGates      `json:"gates"`
	MaxOutputDimensionPx int                           `json:"max_output_dimension_px"`
	Interpolation        Interpolation                 `json:"interpolation"`
	BoundPolicy          BoundPolicy                   `json:"bound_policy"`
	Fast                 keypoints.FASTConfig          `json:"fast"`
	Brief                keypoints.BRIEFConfig         `json:"brief"`
	Matching             keypoints.MatchingConfig      `json:"matching"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		NeighborhoodMode:     transform.CrossNeighborhood,
		Clusters:             segmentation.DefaultClustersConfig(),
		Components:           segmentation.DefaultComponentsConfig(),
		Gates:                transform.DefaultSynthesisGates(),
		MaxOutputDimensionPx: 4096,
		Interpolation:        BilinearInterpolation,
		BoundPolicy:          ClipPolicy,
		Fast: keypoints.FASTConfig{
			NMatchesCircle: 9,
			NMSWinSize:     7,
			Threshold:      0.15,
			Oriented:       true,
		},
		Brief: keypoints.BRIEFConfig{
			N:              256,
			Sampling:       1,
			UseOrientation: true,
			PatchSize:      48,
		},
		Matching: keypoints.MatchingConfig{
			DoCrossCheck: true,
			MaxDist:      70,
		},
	}
}

// LoadConfiguration loads a Config from a json file.
func LoadConfiguration(file string) (*Config, error) {
	var config Config
	filePath := filepath.Clean(file)
	configFile, err := os.Open(filePath)
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err != nil {
		return nil, err
	}
	jsonParser := json.NewDecoder(configFile)
	if err := jsonParser.Decode(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration bounds.
func (cfg *Config) Validate() error {
	if cfg.NeighborhoodMode != transform.CrossNeighborhood && cfg.NeighborhoodMode != transform.SobelNeighborhood {
		return errors.Errorf("unknown neighborhood mode %q", cfg.NeighborhoodMode)
	}
	if err := cfg.Clusters.Validate(); err != nil {
		return err
	}
	if err := cfg.Components.Validate(); err != nil {
		return err
	}
	if cfg.MaxOutputDimensionPx < 1 {
		return errors.New("max_output_dimension_px must be >= 1")
	}
	if cfg.Interpolation != NearestInterpolation && cfg.Interpolation != BilinearInterpolation {
		return errors.Errorf("unknown interpolation %q", cfg.Interpolation)
	}
	if cfg.BoundPolicy != ClipPolicy && cfg.BoundPolicy != RejectPolicy {
		return errors.Errorf("unknown bound policy %q", cfg.BoundPolicy)
	}
	if err := cfg.Fast.Validate(); err != nil {
		return err
	}
	if err := cfg.Brief.Validate(); err != nil {
		return err
	}
	return cfg.Matching.Validate()
}
