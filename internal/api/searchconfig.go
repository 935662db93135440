package api

import (
	"fmt"
	"maps"

	"github.com/mitchellh/mapstructure"

	"beamsched/internal/config"
	"beamsched/internal/opt"
)

// searchSettings is the tunable part of opt.Config as stored per tenant
// and accepted per request.
type searchSettings struct {
	Ceiling        int    `mapstructure:"ceiling" json:"ceiling" validate:"gte=0"`
	Scorer         string `mapstructure:"scorer" json:"scorer"`
	ThrashFactor   int    `mapstructure:"thrashFactor" json:"thrashFactor" validate:"gte=0"`
	KeepDuplicates bool   `mapstructure:"keepDuplicates" json:"keepDuplicates"`
	Workers        int    `mapstructure:"workers" json:"workers" validate:"gte=1,lte=64"`
}

func defaultSettings(d config.Search) map[string]any {
	return map[string]any{
		"ceiling":        d.Ceiling,
		"scorer":         d.Scorer,
		"thrashFactor":   d.ThrashFactor,
		"keepDuplicates": false,
		"workers":        d.Workers,
	}
}

// resolveSettings layers the service defaults, then each override map in
// order. Unknown keys are an error.
func resolveSettings(d config.Search, layers ...map[string]any) (searchSettings, error) {
	merged := defaultSettings(d)
	for _, l := range layers {
		maps.Copy(merged, l)
	}
	var s searchSettings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return searchSettings{}, err
	}
	if err := dec.Decode(merged); err != nil {
		return searchSettings{}, fmt.Errorf("%w: %v", opt.ErrBadConfig, err)
	}
	if err := validateStruct(s); err != nil {
		return searchSettings{}, fmt.Errorf("%w: %v", opt.ErrBadConfig, err)
	}
	if _, err := opt.ScorerByName(s.Scorer); err != nil {
		return searchSettings{}, fmt.Errorf("%w: scorer %q", opt.ErrBadConfig, s.Scorer)
	}
	return s, nil
}

// searchConfig converts resolved settings to the search configuration.
func (s searchSettings) searchConfig() opt.Config {
	scorer, _ := opt.ScorerByName(s.Scorer) // checked by resolveSettings
	return opt.Config{
		Ceiling:        s.Ceiling,
		Scorer:         scorer,
		ThrashFactor:   s.ThrashFactor,
		KeepDuplicates: s.KeepDuplicates,
		Workers:        s.Workers,
	}
}
