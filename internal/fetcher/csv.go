package fetcher

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Charset    string
	LazyQuotes bool
	TrimSpace  bool
}

// NewCSVReader returns a csv.Reader over r decoded from opts.Charset.
func NewCSVReader(r io.Reader, opts CSVOptions) (*csv.Reader, error) {
	decoded, err := DecodeReader(r, opts.Charset)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(decoded)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.TrimLeadingSpace = opts.TrimSpace
	return reader, nil
}

// ReadCSV reads a whole CSV stream into a RawTable. The first row is the header.
func ReadCSV(r io.Reader, opts CSVOptions) (*RawTable, error) {
	reader, err := NewCSVReader(r, opts)
	if err != nil {
		return nil, err
	}

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("csv: empty input")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		rows = append(rows, record)
	}

	return NewRawTable(trimAll(header), rows), nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, opts CSVOptions) (*RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f, opts)
}

func trimAll(ss []string) []string {
	for i, s := range ss {
		ss[i] = strings.TrimSpace(s)
	}
	return ss
}
