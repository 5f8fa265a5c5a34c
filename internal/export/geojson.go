package export

import (
	"io"

	"github.com/paulmach/orb/geojson"
)

// WriteGeoJSON writes a feature collection.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	return writeFile(path, func(w io.Writer) error {
		data, err := fc.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}
