package weather

import "math"

const (
	kmPerMile     = 1.609344
	msPerMPH      = 0.44704
	knotsPerMPH   = 0.868976
	hPaPerInHg    = 33.8638866667
	metersPerMile = 1609.344
	mmPerInch     = 25.4
)

var cardinals = [16]string{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW",
	"W", "WNW", "NW", "NNW",
}

func CelsiusToFahrenheit(c float64) float64 { return c*9/5 + 32 }

func FahrenheitToCelsius(f float64) float64 { return (f - 32) * 5 / 9 }

func KPHToMPH(kph float64) float64 { return kph / kmPerMile }

func MPHToKPH(mph float64) float64 { return mph * kmPerMile }

func MSToMPH(ms float64) float64 { return ms / msPerMPH }

func KnotsToMPH(kn float64) float64 { return kn / knotsPerMPH }

func HPaToInHg(hpa float64) float64 { return hpa / hPaPerInHg }

func InHgToHPa(inHg float64) float64 { return inHg * hPaPerInHg }

// PaToInHg converts pascals, as reported by NWS observations.
func PaToInHg(pa float64) float64 { return HPaToInHg(pa / 100) }

func MetersToMiles(m float64) float64 { return m / metersPerMile }

func MillimetersToInches(mm float64) float64 { return mm / mmPerInch }

// DegreesToCardinal maps a wind direction in degrees to one of 16 compass
// points using index = round(deg/22.5) mod 16.
func DegreesToCardinal(deg float64) string {
	i := int(math.Round(deg/22.5)) % 16
	if i < 0 {
		i += 16
	}
	return cardinals[i]
}

// CardinalToDegrees is the inverse of DegreesToCardinal. ok is false for
// labels that are not one of the 16 compass points.
func CardinalToDegrees(label string) (deg float64, ok bool) {
	for i, c := range cardinals {
		if c == label {
			return float64(i) * 22.5, true
		}
	}
	return 0, false
}
