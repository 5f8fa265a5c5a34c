package model

import "strings"

// Mode is one of the travel mode categories predicted per zone pair.
type Mode string

const (
	ModeWalking    Mode = "Caminando"
	ModeTransit    Mode = "Transporte_Colectivo"
	ModeTaxi       Mode = "Taxi"
	ModeBicycle    Mode = "Bicicleta"
	ModeMotorcycle Mode = "Motocicleta"
	ModeVehicle    Mode = "Vehiculo"
	ModeOther      Mode = "Otros"
	ModeTotal      Mode = "Total"
)

// NumModes is the number of mode categories, Total included.
const NumModes = 8

// Modes lists the mode categories in output column order.
var Modes = [NumModes]Mode{
	ModeWalking,
	ModeTransit,
	ModeTaxi,
	ModeBicycle,
	ModeMotorcycle,
	ModeVehicle,
	ModeOther,
	ModeTotal,
}

// ModeColumns returns the mode category names as column names.
func ModeColumns() []string {
	cols := make([]string, NumModes)
	for i, m := range Modes {
		cols[i] = string(m)
	}
	return cols
}

// IsVehicleColumn reports whether a raw survey column is merged into Vehiculo.
func IsVehicleColumn(name string) bool {
	return strings.Contains(name, "Auto") || strings.Contains(name, "Camioneta")
}

// Profile is a routing profile of the matrix-duration service.
type Profile string

const (
	ProfileDriving Profile = "driving-car"
	ProfileWalking Profile = "foot-walking"
)

// Profiles lists the profiles in the order the matrix builder runs them.
var Profiles = []Profile{ProfileDriving, ProfileWalking}

// Column returns the pairwise table column holding durations for p.
func (p Profile) Column() string {
	switch p {
	case ProfileDriving:
		return "travel_time_Driving"
	case ProfileWalking:
		return "travel_time_Walking"
	default:
		return "travel_time_" + string(p)
	}
}
