package localizer

import (
	"stutter-detection/analysis"
	"stutter-detection/utils"
)

// FromEnv picks the localization backend. Setting LOCALIZER_URL delegates to
// an external service; otherwise the in-process energy localizer is used.
func FromEnv() analysis.Localizer {
	if url := utils.GetEnv("LOCALIZER_URL", ""); url != "" {
		return NewServiceClient(url)
	}
	return NewEnergyLocalizer()
}
