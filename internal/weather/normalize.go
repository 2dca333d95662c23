package weather

// normalizeCurrent returns a copy of c in which every quantity reported in
// only one unit system is filled in for the other, and the wind cardinal is
// derived from degrees when missing. Canonical units are °F, mph, inHg and %.
func normalizeCurrent(c *CurrentConditions) *CurrentConditions {
	if c == nil {
		return nil
	}
	n := *c

	n.TemperatureF, n.TemperatureC = pairTemperature(n.TemperatureF, n.TemperatureC)
	n.FeelsLikeF, n.FeelsLikeC = pairTemperature(n.FeelsLikeF, n.FeelsLikeC)
	n.DewpointF, n.DewpointC = pairTemperature(n.DewpointF, n.DewpointC)

	switch {
	case n.WindSpeedMPH == nil && n.WindSpeedKPH != nil:
		n.WindSpeedMPH = Float(KPHToMPH(*n.WindSpeedKPH))
	case n.WindSpeedKPH == nil && n.WindSpeedMPH != nil:
		n.WindSpeedKPH = Float(MPHToKPH(*n.WindSpeedMPH))
	}

	switch {
	case n.PressureIn == nil && n.PressureMB != nil:
		n.PressureIn = Float(HPaToInHg(*n.PressureMB))
	case n.PressureMB == nil && n.PressureIn != nil:
		n.PressureMB = Float(InHgToHPa(*n.PressureIn))
	}

	if n.WindCardinal == "" && n.WindDirectionDeg != nil {
		n.WindCardinal = DegreesToCardinal(*n.WindDirectionDeg)
	}
	if n.Humidity != nil {
		n.Humidity = Float(clamp(*n.Humidity, 0, 100))
	}
	return &n
}

func pairTemperature(f, c *float64) (*float64, *float64) {
	switch {
	case f == nil && c != nil:
		f = Float(CelsiusToFahrenheit(*c))
	case c == nil && f != nil:
		c = Float(FahrenheitToCelsius(*f))
	}
	return f, c
}

func normalizeForecast(f *Forecast) *Forecast {
	if f == nil {
		return &Forecast{Periods: []ForecastPeriod{}}
	}
	n := *f
	n.Periods = make([]ForecastPeriod, len(f.Periods))
	copy(n.Periods, f.Periods)
	for i := range n.Periods {
		p := &n.Periods[i]
		if p.PrecipitationProbability != nil {
			p.PrecipitationProbability = Float(clamp(*p.PrecipitationProbability, 0, 100))
		}
	}
	return &n
}

func normalizeHourly(h *HourlyForecast) *HourlyForecast {
	if h == nil {
		return &HourlyForecast{Periods: []HourlyForecastPeriod{}}
	}
	n := *h
	n.Periods = make([]HourlyForecastPeriod, len(h.Periods))
	copy(n.Periods, h.Periods)
	for i := range n.Periods {
		p := &n.Periods[i]
		if p.Humidity != nil {
			p.Humidity = Float(clamp(*p.Humidity, 0, 100))
		}
		if p.PrecipitationProbability != nil {
			p.PrecipitationProbability = Float(clamp(*p.PrecipitationProbability, 0, 100))
		}
	}
	return &n
}

func normalizeAlerts(a *WeatherAlerts) *WeatherAlerts {
	if a == nil || a.Alerts == nil {
		return &WeatherAlerts{Alerts: []WeatherAlert{}}
	}
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
