// Package export renders concentration-time series as standalone SVG
// charts for reports and notebooks.
package export

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/nutrakinetics/nadsim/internal/sim"
)

const (
	chartWidth   = 860.0
	chartHeight  = 420.0
	marginLeft   = 70.0
	marginRight  = 20.0
	marginTop    = 40.0
	marginBottom = 50.0
)

var seriesColors = []string{
	"#1f77b4", "#d62728", "#2ca02c", "#9467bd", "#ff7f0e", "#8c564b",
}

// SVGChart renders the named concentration series of a result into one
// chart. With no names given, every available series is drawn.
func SVGChart(res *sim.Result, names ...string) (string, error) {
	if len(names) == 0 {
		for n := range res.Concentrations {
			names = append(names, n)
		}
		sort.Strings(names)
	}

	maxY := 0.0
	for _, n := range names {
		series, ok := res.Concentrations[n]
		if !ok {
			return "", fmt.Errorf("export: no concentration series %q", n)
		}
		for _, v := range series {
			if v > maxY {
				maxY = v
			}
		}
	}
	if maxY == 0 {
		maxY = 1
	}
	maxX := res.TimesH[len(res.TimesH)-1]
	if maxX == 0 {
		maxX = 1
	}

	plotW := chartWidth - marginLeft - marginRight
	plotH := chartHeight - marginTop - marginBottom
	toX := func(t float64) float64 { return marginLeft + t/maxX*plotW }
	toY := func(v float64) float64 { return marginTop + (1-v/maxY)*plotH }

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#ffffff"/>
`, chartWidth, chartHeight, chartWidth, chartHeight))

	// Axes and gridlines with round tick values.
	sb.WriteString(fmt.Sprintf(`<g stroke="#cccccc" stroke-width="1">
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
</g>
`, marginLeft, marginTop, marginLeft, marginTop+plotH,
		marginLeft, marginTop+plotH, marginLeft+plotW, marginTop+plotH))

	sb.WriteString(`<g font-family="sans-serif" font-size="11" fill="#333333">` + "\n")
	for i := 0; i <= 6; i++ {
		tv := maxX * float64(i) / 6
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>`+"\n",
			toX(tv), marginTop+plotH+18, trimFloat(tv)))
		yv := maxY * float64(i) / 6
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" text-anchor="end">%s</text>`+"\n",
			marginLeft-8, toY(yv)+4, trimFloat(yv)))
	}
	sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" text-anchor="middle">time (h)</text>`+"\n",
		marginLeft+plotW/2, chartHeight-10))
	sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" text-anchor="middle" transform="rotate(-90 14 %.1f)">concentration (uM)</text>`+"\n",
		14.0, marginTop+plotH/2, marginTop+plotH/2))
	sb.WriteString("</g>\n")

	for si, n := range names {
		series := res.Concentrations[n]
		color := seriesColors[si%len(seriesColors)]

		points := make([]string, 0, len(series))
		for i, v := range series {
			points = append(points, fmt.Sprintf("%.1f,%.1f", toX(res.TimesH[i]), toY(v)))
		}
		sb.WriteString(fmt.Sprintf(`<polyline fill="none" stroke="%s" stroke-width="1.5" points="%s"/>`+"\n",
			color, strings.Join(points, " ")))

		// Legend entry.
		lx := marginLeft + 10
		ly := marginTop + 14 + float64(si)*16
		sb.WriteString(fmt.Sprintf(`<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s" stroke-width="2"/>`+"\n",
			lx, ly-4, lx+18, ly-4, color))
		sb.WriteString(fmt.Sprintf(`<text x="%.1f" y="%.1f" font-family="sans-serif" font-size="11" fill="#333333">%s</text>`+"\n",
			lx+24, ly, n))
	}

	sb.WriteString("</svg>\n")
	return sb.String(), nil
}

// WriteSVG renders the chart to a file.
func WriteSVG(path string, res *sim.Result, names ...string) error {
	svg, err := SVGChart(res, names...)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(svg), 0o644)
}

func trimFloat(v float64) string {
	if v >= 100 || v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
