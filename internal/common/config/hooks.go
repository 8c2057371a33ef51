package config

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/surgeproject/surge/internal/orchestrator/domain"
)

// CustomHooks is passed to viper on every config unmarshal. Supplying a
// decode hook replaces viper's built-in ones, so the composition below has to
// re-include the duration and slice hooks alongside our own.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		CapacityModeDecodeHook(),
	)),
}

// CapacityModeDecodeHook parses capacity mode strings case-insensitively,
// rejecting unknown values at load time rather than on first use.
func CapacityModeDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(domain.CapacityModeStandard) {
			return data, nil
		}
		return domain.ParseCapacityMode(data.(string))
	}
}
