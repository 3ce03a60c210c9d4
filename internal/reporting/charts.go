package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/inferloop/anonkl/internal/privacy"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 6 * vg.Inch
)

// RenderClassSizeChart writes a PNG bar chart of the top largest classes.
func RenderClassSizeChart(w io.Writer, classes []*privacy.EquivalenceClass, top int, title string) error {
	summaries := TopClasses(classes, top)
	if len(summaries) == 0 {
		return fmt.Errorf("no equivalence classes to plot")
	}

	values := make(plotter.Values, len(summaries))
	labels := make([]string, len(summaries))
	for i, class := range summaries {
		values[i] = float64(class.Size)
		labels[i] = strings.Join(class.Values, "\n")
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Tamanho da classe"

	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return fmt.Errorf("failed to build class size chart: %w", err)
	}
	p.Add(bars)
	p.NominalX(labels...)

	return writePNG(p, w)
}

// RenderDiversityHistogram writes a PNG histogram of classes per distinct
// sensitive-value count.
func RenderDiversityHistogram(w io.Writer, histogram map[int]int, title string) error {
	maxDiversity := 0
	for diversity := range histogram {
		if diversity > maxDiversity {
			maxDiversity = diversity
		}
	}
	if maxDiversity == 0 {
		return fmt.Errorf("no equivalence classes to plot")
	}

	values := make(plotter.Values, maxDiversity)
	labels := make([]string, maxDiversity)
	for i := range values {
		values[i] = float64(histogram[i+1])
		labels[i] = strconv.Itoa(i + 1)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Número de valores distintos de raca_cor"
	p.Y.Label.Text = "Frequência"

	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return fmt.Errorf("failed to build diversity histogram: %w", err)
	}
	p.Add(bars)
	p.NominalX(labels...)

	return writePNG(p, w)
}

func writePNG(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}
