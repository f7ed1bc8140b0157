package calib

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// ParseObservationsCSV reads an observed dataset with a header row. The
// time column is "time_h"; the value column is "observed_<target>_uM",
// or the single remaining column when the file has exactly two.
func ParseObservationsCSV(r io.Reader, target string) ([]Observation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("calib: reading observations header: %w", err)
	}

	timeCol, valueCol := -1, -1
	wantValue := "observed_" + target + "_uM"
	for i, name := range header {
		switch name {
		case "time_h":
			timeCol = i
		case wantValue:
			valueCol = i
		}
	}
	if timeCol < 0 {
		return nil, fmt.Errorf("calib: observations are missing a time_h column")
	}
	if valueCol < 0 {
		if len(header) != 2 {
			return nil, fmt.Errorf("calib: observations are missing a %s column", wantValue)
		}
		valueCol = 1 - timeCol
	}

	var obs []Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calib: reading observations: %w", err)
		}
		t, err := strconv.ParseFloat(rec[timeCol], 64)
		if err != nil {
			return nil, fmt.Errorf("calib: observations line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(rec[valueCol], 64)
		if err != nil {
			return nil, fmt.Errorf("calib: observations line %d: %w", line, err)
		}
		obs = append(obs, Observation{TimeH: t, ValueUM: v})
	}
	return obs, nil
}
