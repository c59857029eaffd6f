package ovda

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComponentState_String(t *testing.T) {
	assert.Equal(t, "Executing", StateExecuting.String())
	assert.Equal(t, "Unloaded", StateUnloaded.String())
	assert.Contains(t, ComponentState(99).String(), "ComponentState")
}

func TestTransition_String(t *testing.T) {
	assert.Equal(t, "Resetting", TransitionResetting.String())
	assert.Equal(t, "None", TransitionNone.String())
	assert.Contains(t, Transition(99).String(), "Transition")
}

func TestProfile_MapsUnnamableVariantsToHigh444(t *testing.T) {
	assert.Equal(t, ProfileH264High444, mapToComponentProfile(ProfileH264ScalableHigh))
	assert.Equal(t, ProfileH264High444, mapToComponentProfile(ProfileH264StereoHigh))
	assert.Equal(t, ProfileH264High444, mapToComponentProfile(ProfileH264MultiviewHigh))
	assert.Equal(t, ProfileH264Baseline, mapToComponentProfile(ProfileH264Baseline))
}

func TestGetSupportedProfiles_ExcludesFallbackOnlyVariants(t *testing.T) {
	profiles := GetSupportedProfiles()
	for _, p := range profiles {
		assert.NotEqual(t, ProfileH264StereoHigh, p)
		assert.NotEqual(t, ProfileH264ScalableHigh, p)
		assert.NotEqual(t, ProfileH264MultiviewHigh, p)
	}
	assert.Contains(t, profiles, ProfileVP8)
	assert.Contains(t, profiles, ProfileH264High444)
}
