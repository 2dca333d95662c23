package weather

// boundingBox is an inclusive latitude/longitude rectangle.
type boundingBox struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

func (b boundingBox) contains(lat, lon float64) bool {
	return lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon
}

// nwsCoverage approximates the areas served by api.weather.gov.
var nwsCoverage = []boundingBox{
	{minLat: 24.0, maxLat: 49.0, minLon: -125.0, maxLon: -66.5},  // continental US
	{minLat: 49.0, maxLat: 49.4, minLon: -95.4, maxLon: -94.8},   // Northwest Angle
	{minLat: 51.0, maxLat: 71.5, minLon: -180.0, maxLon: -141.0}, // Alaska west of the Yukon border
	{minLat: 54.6, maxLat: 60.0, minLon: -141.0, maxLon: -130.0}, // Alaska panhandle
	{minLat: 51.0, maxLat: 55.5, minLon: 172.0, maxLon: 180.0},   // western Aleutians
	{minLat: 18.5, maxLat: 22.5, minLon: -161.0, maxLon: -154.5}, // Hawaii
}

// nwsExclusions carve populated Canadian, Bahamian and Mexican areas out of
// the continental box. The border is not rectangular, so smaller towns along it
// can still land on the wrong side.
var nwsExclusions = []boundingBox{
	{minLat: 42.7, maxLat: 45.0, minLon: -82.3, maxLon: -79.1},   // southern Ontario
	{minLat: 45.01, maxLat: 49.0, minLon: -79.5, maxLon: -71.5},  // Ottawa, Montreal, Quebec
	{minLat: 24.0, maxLat: 27.3, minLon: -79.0, maxLon: -74.0},   // Bahamas
	{minLat: 24.0, maxLat: 25.8, minLon: -117.0, maxLon: -97.5},  // northern Mexico
	{minLat: 24.0, maxLat: 29.5, minLon: -117.0, maxLon: -104.6}, // Baja California, Chihuahua
	{minLat: 24.0, maxLat: 31.3, minLon: -114.8, maxLon: -108.2}, // Sonora
}

// IsUSLocation reports whether the point falls inside NWS coverage.
func IsUSLocation(lat, lon float64) bool {
	for _, b := range nwsExclusions {
		if b.contains(lat, lon) {
			return false
		}
	}
	for _, b := range nwsCoverage {
		if b.contains(lat, lon) {
			return true
		}
	}
	return false
}
