package weather

// enrichCurrent returns primary with every field it lacks filled from
// secondary. Values reported by primary always win.
func enrichCurrent(primary, secondary *CurrentConditions) *CurrentConditions {
	if primary == nil {
		return secondary
	}
	if secondary == nil {
		return primary
	}
	out := *primary

	fill := func(dst **float64, src *float64) {
		if *dst == nil && src != nil {
			v := *src
			*dst = &v
		}
	}
	fill(&out.TemperatureF, secondary.TemperatureF)
	fill(&out.TemperatureC, secondary.TemperatureC)
	fill(&out.FeelsLikeF, secondary.FeelsLikeF)
	fill(&out.FeelsLikeC, secondary.FeelsLikeC)
	fill(&out.DewpointF, secondary.DewpointF)
	fill(&out.DewpointC, secondary.DewpointC)
	fill(&out.Humidity, secondary.Humidity)
	fill(&out.WindSpeedMPH, secondary.WindSpeedMPH)
	fill(&out.WindSpeedKPH, secondary.WindSpeedKPH)
	fill(&out.WindGustMPH, secondary.WindGustMPH)
	fill(&out.WindDirectionDeg, secondary.WindDirectionDeg)
	fill(&out.PressureIn, secondary.PressureIn)
	fill(&out.PressureMB, secondary.PressureMB)
	fill(&out.VisibilityMiles, secondary.VisibilityMiles)
	fill(&out.UVIndex, secondary.UVIndex)

	if out.Condition == "" {
		out.Condition = secondary.Condition
	}
	if out.WindCardinal == "" {
		out.WindCardinal = secondary.WindCardinal
	}
	if out.Sunrise == nil {
		out.Sunrise = secondary.Sunrise
	}
	if out.Sunset == nil {
		out.Sunset = secondary.Sunset
	}
	return &out
}
