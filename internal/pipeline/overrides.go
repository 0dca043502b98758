package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"ebidash/internal/consolidate"
	apperrors "ebidash/internal/errors"
)

// Overrides are the hand-maintained corrections applied to every funding stage
// of the catalog, read from a YAML file:
//
//	funding:
//	  rename:
//	    "Smith-Jones": Smith
//	  overrides:
//	    - key: Smith
//	      column: PI
//	      equals: [Smith]
//	      values: {"2019 Actual": 120}
//	      note: confirmed by finance
type Overrides struct {
	Funding FundingOverrides `yaml:"funding"`
}

// FundingOverrides rename raw PI spellings and assert totals
type FundingOverrides struct {
	Rename    map[string]string      `yaml:"rename"`
	Overrides []consolidate.Override `yaml:"overrides" validate:"dive"`
}

// Empty reports whether the file asserted nothing
func (o *Overrides) Empty() bool {
	return o == nil || (len(o.Funding.Rename) == 0 && len(o.Funding.Overrides) == 0)
}

// LoadOverrides reads an overrides file. An empty path yields no overrides.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read overrides file", err).WithContext("path", path)
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, apperrors.NewConfigError("failed to parse overrides file", err).WithContext("path", path)
	}
	if err := validate.Struct(&o); err != nil {
		return nil, apperrors.NewConfigError("invalid overrides file", err).WithContext("path", path)
	}
	for i, ov := range o.Funding.Overrides {
		if ov.Column == "" || (len(ov.Equals) == 0 && ov.Contains == "") {
			return nil, apperrors.NewConfigError(
				fmt.Sprintf("override %d (%s) needs a column and equals or contains", i, ov.Key), nil).
				WithContext("path", path)
		}
	}
	return &o, nil
}

// apply folds the overrides into a funding stage
func (o *Overrides) apply(stage FundingStage) FundingStage {
	if o.Empty() {
		return stage
	}
	if len(o.Funding.Rename) > 0 {
		rename := make(map[string]string, len(stage.Rename)+len(o.Funding.Rename))
		for k, v := range stage.Rename {
			rename[k] = v
		}
		for k, v := range o.Funding.Rename {
			rename[k] = v
		}
		stage.Rename = rename
	}
	stage.Overrides = append(append([]consolidate.Override(nil), stage.Overrides...), o.Funding.Overrides...)
	return stage
}
