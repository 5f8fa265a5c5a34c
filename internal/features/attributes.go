package features

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/sells-group/odflow/internal/spatial"
	"github.com/sells-group/odflow/internal/table"
)

// Attribute column names produced by BuildAttributes.
const (
	SurveyPrefix      = "datosAgrupados_"
	ActivityPrefix    = "act_"
	EconomicUnits     = "Unidades_Economicas"
	BikeStations      = "Estaciones_Mi_Bici"
	BusStops          = "Paradas_Camion"
	CensusBlocksCount = "Manzanas"
)

// Layers holds the point layers summarised per zone. Nil layers are
// skipped.
type Layers struct {
	// Totals is the per-zone survey aggregate; its columns get SurveyPrefix.
	Totals       *table.Table[string]
	DENUE        []spatial.Tagged
	MiBici       []orb.Point
	Stops        []orb.Point
	Blocks       []spatial.Weighted
	CensusFields []string
}

// BuildAttributes assembles the raw zone attribute table: survey totals,
// DENUE activity counts, bike stations, bus stops and census sums, one row
// per zone in index order. Zones with no data in a layer get 0.
func BuildAttributes(ix *spatial.Index, layers Layers) (*table.Table[string], error) {
	out := table.New[string]("attributes", nil)
	for _, id := range ix.IDs() {
		if err := out.Append(id, nil); err != nil {
			return nil, err
		}
	}

	join := func(name string, t *table.Table[string], err error) error {
		if err != nil {
			return eris.Wrapf(err, "features: summarise %s", name)
		}
		joined, err := table.LeftJoin(out, t)
		if err != nil {
			return eris.Wrapf(err, "features: join %s", name)
		}
		out = joined
		return nil
	}

	if layers.Totals != nil {
		prefixed, err := layers.Totals.Rename(func(c string) string { return SurveyPrefix + c })
		if err := join("survey totals", prefixed, err); err != nil {
			return nil, err
		}
	}
	if layers.DENUE != nil {
		t, err := spatial.PivotWithin(ix, layers.DENUE, ActivityPrefix, EconomicUnits)
		if err := join("denue", t, err); err != nil {
			return nil, err
		}
	}
	if layers.MiBici != nil {
		t, err := spatial.CountWithin(ix, layers.MiBici, BikeStations)
		if err := join("mibici", t, err); err != nil {
			return nil, err
		}
	}
	if layers.Stops != nil {
		t, err := spatial.CountWithin(ix, layers.Stops, BusStops)
		if err := join("gtfs stops", t, err); err != nil {
			return nil, err
		}
	}
	if layers.Blocks != nil {
		t, err := spatial.SumWithin(ix, layers.Blocks, layers.CensusFields, CensusBlocksCount)
		if err := join("census", t, err); err != nil {
			return nil, err
		}
	}

	out.FillNaN(0)
	return out, nil
}
