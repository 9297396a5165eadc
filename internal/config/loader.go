// Package config loads conversation test cases from YAML files, validating
// them against the embedded schema before they reach any evaluator.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/convocheck/convocheck/internal/detector"
	"github.com/convocheck/convocheck/internal/models"
	"github.com/convocheck/convocheck/internal/validation"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// LoadTestCase reads, schema-validates, and decodes a test case YAML file.
func LoadTestCase(path string) (*models.ConversationTestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test case: %w", err)
	}
	return ParseTestCase(data)
}

// ParseTestCase decodes raw YAML into a test case. Schema validation runs
// first so unknown goal or constraint types are rejected with a useful
// message instead of silently decoding to zero values.
func ParseTestCase(data []byte) (*models.ConversationTestCase, error) {
	if errs := validation.ValidateTestCaseBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("test case failed schema validation:\n  %s", strings.Join(errs, "\n  "))
	}

	var tc models.ConversationTestCase
	if err := yaml.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("decoding test case: %w", err)
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return &tc, nil
}

// detectorOverrides mirrors the tunable detection thresholds as they appear
// under the test case's metadata.detector key.
type detectorOverrides struct {
	IntentLoopWindow    *int  `mapstructure:"intent_loop_window"`
	StallThreshold      *int  `mapstructure:"stall_threshold"`
	MaxTurns            *int  `mapstructure:"max_turns"`
	WarningLimit        *int  `mapstructure:"warning_limit"`
	RepetitionMinLength *int  `mapstructure:"repetition_min_length"`
	CompoundLoopStall   *bool `mapstructure:"compound_loop_stall"`
}

// DetectorConfig returns the detector defaults with any per-test overrides
// from metadata.detector applied. Unknown keys under metadata.detector are
// an error, since a typoed threshold that silently falls back to the
// default is worse than a failed load.
func DetectorConfig(tc *models.ConversationTestCase) (detector.Config, error) {
	cfg := detector.DefaultConfig()
	raw, ok := tc.Metadata["detector"]
	if !ok {
		return cfg, nil
	}

	var ov detectorOverrides
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &ov,
		ErrorUnused: true,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("decoding metadata.detector: %w", err)
	}

	if ov.IntentLoopWindow != nil {
		cfg.IntentLoopWindow = *ov.IntentLoopWindow
	}
	if ov.StallThreshold != nil {
		cfg.StallThreshold = *ov.StallThreshold
	}
	if ov.MaxTurns != nil {
		cfg.MaxTurns = *ov.MaxTurns
	}
	if ov.WarningLimit != nil {
		cfg.WarningLimit = *ov.WarningLimit
	}
	if ov.RepetitionMinLength != nil {
		cfg.RepetitionMinLength = *ov.RepetitionMinLength
	}
	if ov.CompoundLoopStall != nil {
		cfg.CompoundLoopStall = *ov.CompoundLoopStall
	}
	return cfg, nil
}
