package sim

// Exposure summarizes one concentration-time series.
type Exposure struct {
	BaselineUM   float64 `json:"baseline_uM"`
	CmaxUM       float64 `json:"cmax_uM"`
	TmaxH        float64 `json:"tmax_h"`
	AUCuMh       float64 `json:"auc_uM_h"`
	FinalUM      float64 `json:"final_uM"`
	DeltaUM      float64 `json:"delta_uM"`
	DeltaPercent float64 `json:"delta_percent"`
}

// ComputeExposure derives the exposure metrics for one series sampled on
// the (possibly non-uniform) output grid. AUC uses the trapezoid rule;
// Tmax is the first time the maximum is attained.
func ComputeExposure(times, values []float64) Exposure {
	if len(times) == 0 || len(times) != len(values) {
		return Exposure{}
	}

	ex := Exposure{
		BaselineUM: values[0],
		CmaxUM:     values[0],
		TmaxH:      times[0],
		FinalUM:    values[len(values)-1],
	}
	for i := 1; i < len(values); i++ {
		if values[i] > ex.CmaxUM {
			ex.CmaxUM = values[i]
			ex.TmaxH = times[i]
		}
		ex.AUCuMh += 0.5 * (values[i] + values[i-1]) * (times[i] - times[i-1])
	}
	ex.DeltaUM = ex.FinalUM - ex.BaselineUM
	if ex.BaselineUM != 0 {
		ex.DeltaPercent = 100 * ex.DeltaUM / ex.BaselineUM
	}
	return ex
}
