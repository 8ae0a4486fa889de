// Package layout arranges materialized charts on a fixed-width dashboard grid.
package layout

import (
	"github.com/Rrens/bi-genie/internal/config"
	"github.com/Rrens/bi-genie/internal/domain"
)

// DefaultCanvasWidth is Superset's grid column count
const DefaultCanvasWidth = 12

// Footprint is the default size of a chart kind in grid units
type Footprint struct {
	Width  int
	Height int
}

// Options controls placement
type Options struct {
	CanvasWidth    int
	Footprints     map[domain.ChartKind]Footprint
	StretchLastRow bool
}

// DefaultOptions returns the standard footprints: half-width panels for
// every kind except big numbers, which take a quarter row.
func DefaultOptions() Options {
	return Options{
		CanvasWidth: DefaultCanvasWidth,
		Footprints: map[domain.ChartKind]Footprint{
			domain.ChartKindTimeSeries: {Width: 6, Height: 50},
			domain.ChartKindBar:        {Width: 6, Height: 50},
			domain.ChartKindPie:        {Width: 6, Height: 50},
			domain.ChartKindTable:      {Width: 6, Height: 50},
			domain.ChartKindMap:        {Width: 6, Height: 50},
			domain.ChartKindBigNumber:  {Width: 3, Height: 30},
		},
		StretchLastRow: true,
	}
}

// OptionsFromConfig overlays configured values on the defaults
func OptionsFromConfig(cfg config.LayoutConfig) Options {
	opts := DefaultOptions()
	if cfg.CanvasWidth > 0 {
		opts.CanvasWidth = cfg.CanvasWidth
	}
	opts.StretchLastRow = cfg.StretchLastRow
	for kind, fp := range cfg.Footprints {
		k := domain.ParseChartKind(kind)
		if !k.Valid() {
			continue
		}
		cur := opts.Footprints[k]
		if fp.Width > 0 {
			cur.Width = fp.Width
		}
		if fp.Height > 0 {
			cur.Height = fp.Height
		}
		opts.Footprints[k] = cur
	}
	return opts
}

func (o Options) footprint(kind domain.ChartKind) Footprint {
	fp, ok := o.Footprints[kind]
	if !ok || fp.Width <= 0 || fp.Height <= 0 {
		fp = Footprint{Width: o.CanvasWidth / 2, Height: 50}
	}
	if fp.Width > o.CanvasWidth {
		fp.Width = o.CanvasWidth
	}
	return fp
}

// Compute places charts left to right, top to bottom, in the given order.
// A chart that does not fit in the remaining row width starts a new row. All
// cells in a row share the row's height, the tallest footprint in it.
// The result is a pure function of the chart kinds, their order and opts.
func Compute(charts []domain.MaterializedChart, opts Options) []domain.LayoutCell {
	if opts.CanvasWidth <= 0 {
		opts.CanvasWidth = DefaultCanvasWidth
	}

	cells := make([]domain.LayoutCell, 0, len(charts))
	row, col, rowStart := 0, 0, 0

	closeRow := func(end int) {
		height := 0
		for i := rowStart; i < end; i++ {
			if cells[i].Height > height {
				height = cells[i].Height
			}
		}
		for i := rowStart; i < end; i++ {
			cells[i].Height = height
		}
	}

	for _, chart := range charts {
		fp := opts.footprint(chart.Spec.Kind)
		if col > 0 && col+fp.Width > opts.CanvasWidth {
			closeRow(len(cells))
			row++
			col = 0
			rowStart = len(cells)
		}
		cells = append(cells, domain.LayoutCell{
			ChartID: chart.ID,
			Row:     row,
			Column:  col,
			Width:   fp.Width,
			Height:  fp.Height,
		})
		col += fp.Width
	}

	if len(cells) == 0 {
		return cells
	}
	closeRow(len(cells))

	if opts.StretchLastRow && len(cells)-rowStart == 1 {
		cells[len(cells)-1].Width = opts.CanvasWidth
	}
	return cells
}
