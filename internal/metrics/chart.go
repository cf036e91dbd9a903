package metrics

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/coursegen/internal/models"
)

// RenderCostChart renders a PNG bar chart of cost-per-node for a lesson,
// built on go-chart/v2's Chart/Style/drawing.ColorFromHex construction,
// adapted from a time series to a bar chart since node cost has no time axis.
func RenderCostChart(lessonID string, nodes []models.NodeCost) ([]byte, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no node cost records for lesson %s", lessonID)
	}

	sorted := make([]models.NodeCost, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].NodeName < sorted[j].NodeName })

	bars := make([]chart.Value, 0, len(sorted))
	for _, n := range sorted {
		color := drawing.ColorFromHex("2563eb") // blue-600, OK
		if !n.OK {
			color = drawing.ColorFromHex("dc2626") // red-600, failed node
		}
		bars = append(bars, chart.Value{
			Label: n.NodeName,
			Value: n.CostUsd,
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: color,
			},
		})
	}

	graph := chart.BarChart{
		Title:  fmt.Sprintf("Cost per Node: Lesson %s", lessonID),
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.3f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
