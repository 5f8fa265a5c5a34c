package model

// Coordinate is a planar or geographic (lon, lat) position.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Zone is the unit of spatial aggregation.
type Zone struct {
	ID       string             `json:"id"`
	Features map[string]float64 `json:"features,omitempty"`
	Coord    Coordinate         `json:"coord"`
}

// TripRow holds the trip generation estimate for one zone.
type TripRow struct {
	ZoneID           string `json:"zone_id" csv:"zone_id"`
	TripsOriginating int64  `json:"trips_originating" csv:"Viajes Origen"`
	TripsTerminating int64  `json:"trips_terminating" csv:"Viajes Destino"`
}

// ModeSplitRow holds predicted trip counts per mode for one zone pair.
type ModeSplitRow struct {
	Pair
	Counts [NumModes]int64 `json:"counts"`
}

// Count returns the predicted count for m.
func (r ModeSplitRow) Count(m Mode) int64 {
	for i, mm := range Modes {
		if mm == m {
			return r.Counts[i]
		}
	}
	return 0
}
