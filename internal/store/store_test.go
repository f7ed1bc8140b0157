package store

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nutrakinetics/nadsim/internal/calib"
	"github.com/nutrakinetics/nadsim/internal/logger"
	"github.com/nutrakinetics/nadsim/internal/params"
	"github.com/nutrakinetics/nadsim/internal/sim"
	"github.com/nutrakinetics/nadsim/internal/supplement"
)

func memStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(t *testing.T) *sim.Result {
	t.Helper()
	catalog, err := params.LoadDefault()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	registry, err := supplement.LoadDefault()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sc := sim.NewScenario()
	sc.Label = "round trip"
	sc.DoseMg = 300
	sc.HorizonH = 6
	sc.OutputPoints = 25

	res, err := sim.NewOrchestrator(catalog, registry, logger.Nop()).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestRunRoundTrip(t *testing.T) {
	s := memStore(t)
	res := sampleResult(t)

	if err := s.SaveRun(res); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(res.Scenario.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if got.Scenario.ID != res.Scenario.ID || got.Scenario.Label != res.Scenario.Label {
		t.Errorf("scenario identity changed across the round trip")
	}
	if !reflect.DeepEqual(got.TimesH, res.TimesH) {
		t.Error("time grid changed across the round trip")
	}
	if !reflect.DeepEqual(got.Exposure, res.Exposure) {
		t.Error("exposure metrics changed across the round trip")
	}
	if !reflect.DeepEqual(got.Concentrations, res.Concentrations) {
		t.Error("concentration series changed across the round trip")
	}
}

func TestRoundTripPreservesEmptyAuditFields(t *testing.T) {
	s := memStore(t)
	res := sampleResult(t)
	if len(res.AppliedCoefficients) != 0 {
		t.Fatalf("expected a no-stack run, got coefficients %+v", res.AppliedCoefficients)
	}

	if err := s.SaveRun(res); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(res.Scenario.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if got.AppliedCoefficients == nil {
		t.Error("applied coefficients decoded as nil")
	}
	if got.ProxyUM == nil {
		t.Error("proxy traces decoded as nil")
	}
	if !reflect.DeepEqual(got.AppliedCoefficients, res.AppliedCoefficients) {
		t.Error("applied coefficients changed across the round trip")
	}
	if !reflect.DeepEqual(got.MultSynthesis, res.MultSynthesis) {
		t.Error("synthesis multiplier trace changed across the round trip")
	}
}

func TestListAndDelete(t *testing.T) {
	s := memStore(t)
	res := sampleResult(t)
	if err := s.SaveRun(res); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	list, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(list) != 1 || list[0].ID != res.Scenario.ID {
		t.Fatalf("list = %+v, want the saved run", list)
	}
	if list[0].Compound != res.Scenario.Compound || list[0].DoseMg != res.Scenario.DoseMg {
		t.Errorf("summary fields wrong: %+v", list[0])
	}

	if err := s.DeleteRun(res.Scenario.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(res.Scenario.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun after delete: %v, want ErrNotFound", err)
	}
	if err := s.DeleteRun(res.Scenario.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v, want ErrNotFound", err)
	}
}

func TestSaveRunReplacesExisting(t *testing.T) {
	s := memStore(t)
	res := sampleResult(t)
	if err := s.SaveRun(res); err != nil {
		t.Fatalf("first save: %v", err)
	}
	res.Warnings = append(res.Warnings, "resaved")
	if err := s.SaveRun(res); err != nil {
		t.Fatalf("second save: %v", err)
	}
	list, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 run after resave, got %d", len(list))
	}
	got, err := s.GetRun(res.Scenario.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(got.Warnings) == 0 || got.Warnings[len(got.Warnings)-1] != "resaved" {
		t.Error("resave did not replace the stored payload")
	}
}

func TestFitRoundTrip(t *testing.T) {
	s := memStore(t)
	fit := &calib.FitResult{
		Target:       "plasma_precursor",
		RuleIDs:      []string{"piperine_nr_absorption"},
		Coefficients: map[string]float64{"piperine_nr_absorption": 0.22},
		Objective:    0.0031,
		Iterations:   41,
		Evaluations:  77,
		Status:       calib.StatusConverged,
		FittedAt:     time.Now().UTC().Truncate(time.Millisecond),
	}

	id, err := s.SaveFit(fit)
	if err != nil {
		t.Fatalf("SaveFit: %v", err)
	}
	got, err := s.GetFit(id)
	if err != nil {
		t.Fatalf("GetFit: %v", err)
	}
	if !reflect.DeepEqual(got, fit) {
		t.Errorf("fit changed across the round trip:\n got %+v\nwant %+v", got, fit)
	}

	list, err := s.ListFits()
	if err != nil {
		t.Fatalf("ListFits: %v", err)
	}
	if len(list) != 1 || list[0].ID != id || list[0].Status != calib.StatusConverged {
		t.Errorf("fit list = %+v", list)
	}

	if _, err := s.GetFit("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFit missing: %v, want ErrNotFound", err)
	}
}

func TestCSVExportShape(t *testing.T) {
	res := sampleResult(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, res); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(res.TimesH)+1 {
		t.Fatalf("%d lines, want %d rows plus header", len(lines), len(res.TimesH))
	}
	header := strings.Split(lines[0], ",")
	if header[0] != "time_h" {
		t.Errorf("first column %q, want time_h", header[0])
	}
	if len(header) != len(res.Concentrations)+1 {
		t.Errorf("%d columns, want %d", len(header), len(res.Concentrations)+1)
	}
}

func TestJSONExportDecodes(t *testing.T) {
	res := sampleResult(t)
	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), res.Scenario.ID) {
		t.Error("exported JSON does not carry the scenario id")
	}
}
