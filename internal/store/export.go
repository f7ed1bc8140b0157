package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/nutrakinetics/nadsim/internal/sim"
)

// WriteJSON streams a full result as indented JSON.
func WriteJSON(w io.Writer, res *sim.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// ExportJSON writes a full result to a JSON file.
func ExportJSON(path string, res *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteJSON(f, res)
}

// WriteCSV streams the output grid as one row per time point: the time
// column followed by every concentration series in name order.
func WriteCSV(w io.Writer, res *sim.Result) error {
	names := make([]string, 0, len(res.Concentrations))
	for n := range res.Concentrations {
		names = append(names, n)
	}
	sort.Strings(names)

	cw := csv.NewWriter(w)
	header := append([]string{"time_h"}, names...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, tm := range res.TimesH {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatFloat(tm, 'g', -1, 64))
		for _, n := range names {
			row = append(row, strconv.FormatFloat(res.Concentrations[n][i], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the concentration series to a CSV file.
func ExportCSV(path string, res *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteCSV(f, res); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
