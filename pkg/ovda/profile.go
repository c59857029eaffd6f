package ovda

import "github.com/igel-oss/chromium-renesas-vda/internal/omxil"

// Profile enumerates every codec profile the client may request.
// Profiles the underlying component cannot name on its own terms are
// mapped onto the nearest one it does understand (see mapToComponentProfile).
type Profile int

const (
	ProfileH264Baseline Profile = iota
	ProfileH264Main
	ProfileH264Extended
	ProfileH264High
	ProfileH264High10
	ProfileH264High422
	ProfileH264High444
	ProfileH264ScalableBaseline
	ProfileH264ScalableHigh
	ProfileH264StereoHigh
	ProfileH264MultiviewHigh
	ProfileVP8
)

func (p Profile) String() string {
	names := map[Profile]string{
		ProfileH264Baseline:         "H264Baseline",
		ProfileH264Main:             "H264Main",
		ProfileH264Extended:         "H264Extended",
		ProfileH264High:             "H264High",
		ProfileH264High10:           "H264High10",
		ProfileH264High422:          "H264High422",
		ProfileH264High444:          "H264High444",
		ProfileH264ScalableBaseline: "H264ScalableBaseline",
		ProfileH264ScalableHigh:     "H264ScalableHigh",
		ProfileH264StereoHigh:       "H264StereoHigh",
		ProfileH264MultiviewHigh:    "H264MultiviewHigh",
		ProfileVP8:                  "VP8",
	}
	if n, ok := names[p]; ok {
		return n
	}
	return "Unknown"
}

func (p Profile) isH264() bool { return p != ProfileVP8 }

// supportedProfiles is what GetSupportedProfiles advertises. Profiles
// that exist only as a component-side fallback mapping (Scalable,
// Stereo, Multiview) are never advertised even though Initialize will
// accept and silently remap them.
var supportedProfiles = []Profile{
	ProfileH264Baseline,
	ProfileH264Main,
	ProfileH264Extended,
	ProfileH264High,
	ProfileH264High10,
	ProfileH264High422,
	ProfileH264High444,
	ProfileVP8,
}

// GetSupportedProfiles returns the profiles this coordinator's
// Initialize will accept without falling back to a compromise mapping.
func GetSupportedProfiles() []Profile {
	out := make([]Profile, len(supportedProfiles))
	copy(out, supportedProfiles)
	return out
}

// mapToComponentProfile maps a client-requested profile onto the
// component-recognized profile actually requested on the wire.
// Scalable/Stereo/Multiview profiles the component can't name are
// mapped to High444 as a pragmatic compromise, per the original
// component's behavior.
func mapToComponentProfile(p Profile) Profile {
	switch p {
	case ProfileH264ScalableBaseline, ProfileH264ScalableHigh,
		ProfileH264StereoHigh, ProfileH264MultiviewHigh:
		return ProfileH264High444
	default:
		return p
	}
}

func roleForProfile(p Profile) omxil.Role {
	if p.isH264() {
		return omxil.RoleH264Decoder
	}
	return omxil.RoleVP8Decoder
}

// minResolution and maxResolution are the component's documented
// operating range, and resolutionInRange tests a size against them.
// Initialize takes no size and does not consult them.
var (
	minResolution = Size{Width: 16, Height: 16}
	maxResolution = Size{Width: 1920, Height: 1080}
)

func resolutionInRange(s Size) bool {
	return s.Width >= minResolution.Width && s.Height >= minResolution.Height &&
		s.Width <= maxResolution.Width && s.Height <= maxResolution.Height
}
