// Package flows reshapes predictions into the edge and node records used
// by map rendering and export.
package flows

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/spatial"
	"github.com/sells-group/odflow/internal/tripgen"
)

// FlowEdge is one OD pair with both endpoint coordinates and its predicted
// count per mode. Coordinates of a zone with no known position are NaN.
type FlowEdge struct {
	Origin      string  `json:"origen" csv:"Origen"`
	Destination string  `json:"destino" csv:"Destino"`
	PXOrigin    float64 `json:"PX_Origen" csv:"PX_Origen"`
	PYOrigin    float64 `json:"PY_Origen" csv:"PY_Origen"`
	PXDest      float64 `json:"PX_Destino" csv:"PX_Destino"`
	PYDest      float64 `json:"PY_Destino" csv:"PY_Destino"`

	Walking    int64 `json:"Caminando" csv:"Caminando"`
	Transit    int64 `json:"Transporte_Colectivo" csv:"Transporte_Colectivo"`
	Taxi       int64 `json:"Taxi" csv:"Taxi"`
	Bicycle    int64 `json:"Bicicleta" csv:"Bicicleta"`
	Motorcycle int64 `json:"Motocicleta" csv:"Motocicleta"`
	Vehicle    int64 `json:"Vehiculo" csv:"Vehiculo"`
	Other      int64 `json:"Otros" csv:"Otros"`
	Total      int64 `json:"Total" csv:"Total"`
}

// Located reports whether both endpoints have coordinates.
func (e FlowEdge) Located() bool {
	return !math.IsNaN(e.PXOrigin) && !math.IsNaN(e.PYOrigin) &&
		!math.IsNaN(e.PXDest) && !math.IsNaN(e.PYDest)
}

// Counts returns the mode counts in model.Modes order.
func (e FlowEdge) Counts() [model.NumModes]int64 {
	return [model.NumModes]int64{
		e.Walking, e.Transit, e.Taxi, e.Bicycle,
		e.Motorcycle, e.Vehicle, e.Other, e.Total,
	}
}

func (e *FlowEdge) setCounts(c [model.NumModes]int64) {
	e.Walking, e.Transit, e.Taxi, e.Bicycle = c[0], c[1], c[2], c[3]
	e.Motorcycle, e.Vehicle, e.Other, e.Total = c[4], c[5], c[6], c[7]
}

// Edges joins zone coordinates onto both ends of every mode-split row.
// Rows keep their order. A pair whose zone has no coordinate keeps NaN
// coordinates and is left out of the GeoJSON collection.
func Edges(rows []model.ModeSplitRow, coords map[string]model.Coordinate) ([]FlowEdge, error) {
	if len(rows) > 0 && len(coords) == 0 {
		return nil, eris.New("flows: no zone coordinates")
	}

	lookup := func(id string) (float64, float64, bool) {
		c, ok := coords[id]
		if !ok {
			return math.NaN(), math.NaN(), false
		}
		return c.X, c.Y, true
	}

	edges := make([]FlowEdge, len(rows))
	missing := make(map[string]bool)
	for i, r := range rows {
		e := FlowEdge{Origin: r.Origin, Destination: r.Destination}
		var ok bool
		if e.PXOrigin, e.PYOrigin, ok = lookup(r.Origin); !ok {
			missing[r.Origin] = true
		}
		if e.PXDest, e.PYDest, ok = lookup(r.Destination); !ok {
			missing[r.Destination] = true
		}
		e.setCounts(r.Counts)
		edges[i] = e
	}

	if len(missing) > 0 {
		ids := make([]string, 0, len(missing))
		for id := range missing {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		zap.L().Warn("flows: zones without coordinates",
			zap.Int("count", len(ids)),
			zap.Strings("zones", ids),
		)
	}
	return edges, nil
}

// ZoneNode is a zone geometry with its trip generation estimate.
type ZoneNode struct {
	ZoneID           string           `json:"zone_id" csv:"zone_id"`
	TripsOriginating int64            `json:"Viajes Origen" csv:"Viajes Origen"`
	TripsTerminating int64            `json:"Viajes Destino" csv:"Viajes Destino"`
	Geometry         orb.MultiPolygon `json:"-" csv:"-"`
}

// Nodes attaches trip estimates to each zone, in zone order. A zone with no
// estimate gets zero trips.
func Nodes(zones []spatial.Zone, trips []model.TripRow) []ZoneNode {
	byZone := make(map[string]model.TripRow, len(trips))
	for _, t := range trips {
		byZone[t.ZoneID] = t
	}
	nodes := make([]ZoneNode, len(zones))
	for i, z := range zones {
		t := byZone[z.ID]
		nodes[i] = ZoneNode{
			ZoneID:           z.ID,
			TripsOriginating: t.TripsOriginating,
			TripsTerminating: t.TripsTerminating,
			Geometry:         z.Geometry,
		}
	}
	return nodes
}

// EdgeCollection renders located edges as LineString features.
func EdgeCollection(edges []FlowEdge) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range edges {
		if !e.Located() {
			continue
		}
		f := geojson.NewFeature(orb.LineString{
			{e.PXOrigin, e.PYOrigin},
			{e.PXDest, e.PYDest},
		})
		f.Properties["Origen"] = e.Origin
		f.Properties["Destino"] = e.Destination
		f.Properties["PX_Origen"] = e.PXOrigin
		f.Properties["PY_Origen"] = e.PYOrigin
		f.Properties["PX_Destino"] = e.PXDest
		f.Properties["PY_Destino"] = e.PYDest
		for i, c := range e.Counts() {
			f.Properties[string(model.Modes[i])] = c
		}
		fc.Append(f)
	}
	return fc
}

// NodeCollection renders zones as polygon features carrying their trip
// estimates.
func NodeCollection(nodes []ZoneNode) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range nodes {
		var g orb.Geometry = n.Geometry
		if len(n.Geometry) == 1 {
			g = n.Geometry[0]
		}
		f := geojson.NewFeature(g)
		f.Properties["zone_id"] = n.ZoneID
		f.Properties[tripgen.ColumnOrigin] = n.TripsOriginating
		f.Properties[tripgen.ColumnDestination] = n.TripsTerminating
		fc.Append(f)
	}
	return fc
}
