// README: External directions links for OpenStreetMap and Google Maps.
package maps

import (
	"fmt"

	"routebot/internal/types"
)

func OSMDirectionsLink(origin, destination types.Coordinate) string {
	return fmt.Sprintf("https://www.openstreetmap.org/directions?engine=fossgis_osrm_car&route=%s;%s",
		origin.String(), destination.String())
}

func GoogleDirectionsLink(origin, destination types.Coordinate) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&origin=%s&destination=%s&travelmode=driving",
		origin.String(), destination.String())
}
