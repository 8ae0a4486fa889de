package materializer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/superset"
)

// ChartCreator creates charts in Superset
type ChartCreator interface {
	CreateChart(ctx context.Context, chart superset.ChartCreate) (int, error)
}

// Result lists what was created and what was not, in proposal order
type Result struct {
	Charts []domain.MaterializedChart
	Failed []domain.ChartFailure
}

// Materializer turns validated specs into Superset charts
type Materializer struct {
	charts      ChartCreator
	parallelism int
	now         func() time.Time
}

// New creates a materializer that runs at most parallelism creates at once
func New(charts ChartCreator, parallelism int) *Materializer {
	if parallelism <= 0 {
		parallelism = domain.MaxProposalCharts
	}
	return &Materializer{charts: charts, parallelism: parallelism, now: time.Now}
}

type outcome struct {
	chart *domain.MaterializedChart
	err   error
}

// Materialize creates one chart per spec. A failed spec never stops its
// siblings and nothing is rolled back. indexes maps each spec to its
// position in the proposal and may be nil.
func (m *Materializer) Materialize(ctx context.Context, owner domain.Identity, specs []domain.ChartSpec, indexes []int) *Result {
	outcomes := make([]outcome, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for i, spec := range specs {
		g.Go(func() error {
			id, err := m.create(gctx, owner, spec)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			outcomes[i] = outcome{chart: &domain.MaterializedChart{Spec: spec, ID: id, CreatedAt: m.now()}}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{}
	for i, o := range outcomes {
		if o.err != nil {
			index := i
			if i < len(indexes) {
				index = indexes[i]
			}
			log.Warn().Err(o.err).Str("title", specs[i].Title).Msg("Chart creation failed")
			result.Failed = append(result.Failed, domain.ChartFailure{
				Index:  index,
				Title:  specs[i].Title,
				Stage:  domain.StageMaterializing,
				Reason: o.err.Error(),
			})
			continue
		}
		log.Info().Int("chart_id", o.chart.ID).Str("title", o.chart.Spec.Title).Msg("Chart created")
		result.Charts = append(result.Charts, *o.chart)
	}
	return result
}

func (m *Materializer) create(ctx context.Context, owner domain.Identity, spec domain.ChartSpec) (int, error) {
	params, err := BuildParams(spec, spec.DatasetID)
	if err != nil {
		return 0, err
	}
	viz, _ := VizType(spec.Kind)

	req := superset.ChartCreate{
		SliceName:      spec.Title,
		VizType:        viz,
		DatasourceID:   spec.DatasetID,
		DatasourceType: "table",
		Params:         params,
	}
	if owner.UserID > 0 {
		req.Owners = []int{owner.UserID}
	}
	return m.charts.CreateChart(ctx, req)
}
