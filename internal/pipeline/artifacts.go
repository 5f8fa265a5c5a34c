package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/odflow/internal/flows"
	"github.com/sells-group/odflow/internal/model"
)

// Artifact names stored with each run.
const (
	ArtifactTrips     = "trips.json"
	ArtifactModeSplit = "mode_split.json"
	ArtifactFlows     = "flows.geojson"
	ArtifactZones     = "zones.geojson"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeGeoJSON = "application/geo+json"
)

// storeArtifacts saves the run's record sets in the store and returns
// their names.
func (p *Pipeline) storeArtifacts(ctx context.Context, out *Output) ([]string, error) {
	docs := []struct {
		name        string
		contentType string
		value       any
	}{
		{ArtifactTrips, contentTypeJSON, out.Trips},
		{ArtifactModeSplit, contentTypeJSON, out.ModeSplit},
		{ArtifactFlows, contentTypeGeoJSON, flows.EdgeCollection(out.Edges)},
		{ArtifactZones, contentTypeGeoJSON, flows.NodeCollection(out.Nodes)},
	}

	names := make([]string, 0, len(docs))
	for _, d := range docs {
		data, err := json.Marshal(d.value)
		if err != nil {
			return names, eris.Wrapf(err, "pipeline: encode %s", d.name)
		}
		if err := p.store.PutArtifact(ctx, model.Artifact{
			RunID:       out.RunID,
			Name:        d.name,
			ContentType: d.contentType,
			Data:        data,
		}); err != nil {
			return names, eris.Wrapf(err, "pipeline: store %s", d.name)
		}
		names = append(names, d.name)
	}
	return names, nil
}
