package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/security"
	"github.com/Rrens/bi-genie/internal/superset"
)

// SupersetAPI is the part of the Superset client the resolver needs.
// An empty token means the admin service session.
type SupersetAPI interface {
	Me(ctx context.Context, token string) (*superset.User, error)
	ListDatasets(ctx context.Context, token string) ([]superset.DatasetSummary, error)
	GetDataset(ctx context.Context, token string, id int) (*superset.DatasetDetail, error)
}

// SchemaCache stores dataset column schemas by id
type SchemaCache interface {
	Get(ctx context.Context, datasetID int) (*domain.Dataset, error)
	Set(ctx context.Context, ds domain.Dataset) error
}

// Options configures a Resolver
type Options struct {
	// CrossCheck drops datasets the admin catalog does not know
	CrossCheck bool
	Cache      SchemaCache
	Now        func() time.Time
}

// Resolver builds the caller's PermissionContext from Superset
type Resolver struct {
	api        SupersetAPI
	cache      SchemaCache
	crossCheck bool
	now        func() time.Time
}

// NewResolver creates a permission resolver
func NewResolver(api SupersetAPI, opts Options) *Resolver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{api: api, cache: opts.Cache, crossCheck: opts.CrossCheck, now: opts.Now}
}

// Identify returns the Superset user behind token
func (r *Resolver) Identify(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}
	if security.TokenExpired(token, r.now()) {
		return domain.Identity{}, fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
	}

	user, err := r.api.Me(ctx, token)
	if err != nil {
		if errors.Is(err, superset.ErrUnauthorized) {
			return domain.Identity{}, fmt.Errorf("%w: token rejected by superset", domain.ErrUnauthenticated)
		}
		return domain.Identity{}, fmt.Errorf("%w: failed to look up user: %v", domain.ErrUpstreamUnavailable, err)
	}
	if user == nil || user.ID == 0 || !user.IsActive {
		return domain.Identity{}, fmt.Errorf("%w: user missing or inactive", domain.ErrUnauthenticated)
	}

	return domain.Identity{UserID: user.ID, Username: user.Username}, nil
}

// Resolve returns the datasets the caller may read, with their columns
func (r *Resolver) Resolve(ctx context.Context, token string) (*domain.PermissionContext, error) {
	identity, err := r.Identify(ctx, token)
	if err != nil {
		return nil, err
	}

	summaries, err := r.api.ListDatasets(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list datasets: %v", domain.ErrUpstreamUnavailable, err)
	}

	if r.crossCheck && len(summaries) > 0 {
		summaries, err = r.knownToAdmin(ctx, summaries)
		if err != nil {
			return nil, err
		}
	}

	pc := &domain.PermissionContext{
		Identity: identity,
		Datasets: make(map[int]domain.Dataset, len(summaries)),
	}
	for _, s := range summaries {
		ds, err := r.dataset(ctx, token, s.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load dataset %d: %v", domain.ErrUpstreamUnavailable, s.ID, err)
		}
		pc.Datasets[ds.ID] = *ds
	}

	log.Info().
		Int("user_id", identity.UserID).
		Str("username", identity.Username).
		Int("datasets", len(pc.Datasets)).
		Msg("Permission context resolved")

	return pc, nil
}

func (r *Resolver) knownToAdmin(ctx context.Context, summaries []superset.DatasetSummary) ([]superset.DatasetSummary, error) {
	catalog, err := r.api.ListDatasets(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list admin catalog: %v", domain.ErrUpstreamUnavailable, err)
	}
	known := make(map[int]bool, len(catalog))
	for _, c := range catalog {
		known[c.ID] = true
	}

	kept := summaries[:0:0]
	for _, s := range summaries {
		if !known[s.ID] {
			log.Warn().Int("dataset_id", s.ID).Str("table", s.TableName).Msg("Dataset not in admin catalog, ignoring")
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

// dataset loads a dataset's columns. The caller has already been shown
// the id by Superset, so a cached schema may be reused.
func (r *Resolver) dataset(ctx context.Context, token string, id int) (*domain.Dataset, error) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int("dataset_id", id).Msg("Schema cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	detail, err := r.api.GetDataset(ctx, token, id)
	if err != nil {
		return nil, err
	}

	ds := &domain.Dataset{ID: detail.ID, Name: detail.TableName}
	if ds.ID == 0 {
		ds.ID = id
	}
	for _, c := range detail.Columns {
		ds.Columns = append(ds.Columns, domain.Column{Name: c.ColumnName, Type: c.Type, IsTemporal: c.IsDttm})
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, *ds); err != nil {
			log.Warn().Err(err).Int("dataset_id", id).Msg("Schema cache write failed")
		}
	}
	return ds, nil
}
