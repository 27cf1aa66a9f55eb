package interactor

import (
	"context"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/domain/gateways"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"sync"
	"time"
)

// pseudoTaxCodes are accepted by QuickBooks companies on automated sales tax
// without appearing in the TaxCode list.
var pseudoTaxCodes = map[string]struct{}{"TAX": {}, "NON": {}}

// MappingResolver loads the settings of one connection and checks every id
// against the live target ledger lists.
type MappingResolver struct {
	settings repositories.SettingsRepository
	catalog  gateways.Catalog
	key      models.ConnectionKey
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
	logger   *zerolog.Logger

	mu       sync.Mutex
	cached   *models.Settings
	cachedAt time.Time
}

func NewMappingResolver(settings repositories.SettingsRepository, catalog gateways.Catalog, key models.ConnectionKey, ttl time.Duration) *MappingResolver {
	l := log.GetLogger()
	return &MappingResolver{
		settings: settings,
		catalog:  catalog,
		key:      key,
		ttl:      ttl,
		now:      time.Now,
		logger:   &l,
	}
}

// Resolve returns settings whose every id exists in the target ledger, or a
// *errors.ValidationError listing the offending fields.
func (r *MappingResolver) Resolve(ctx context.Context) (*models.Settings, error) {
	if s := r.fromCache(); s != nil {
		return s, nil
	}

	v, err, _ := r.group.Do("resolve", func() (interface{}, error) {
		s, problems, err := r.check(ctx)
		if err != nil {
			return nil, err
		}
		if len(problems) > 0 {
			return nil, apperrors.NewSettingsError(problems)
		}
		r.store(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	s := *v.(*models.Settings)
	return &s, nil
}

// Check returns the problem list without failing on it. An empty list means Resolve would succeed.
func (r *MappingResolver) Check(ctx context.Context) ([]apperrors.FieldProblem, error) {
	_, problems, err := r.check(ctx)
	if err != nil {
		return nil, err
	}
	return problems, nil
}

// Invalidate drops the cached resolution.
func (r *MappingResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

func (r *MappingResolver) check(ctx context.Context) (*models.Settings, []apperrors.FieldProblem, error) {
	s, err := r.settings.Get(ctx, r.key)
	if err != nil {
		return nil, nil, fmt.Errorf("settings.Get: %w", err)
	}
	unset := apperrors.ProblemMissing
	if s == nil {
		s = &models.Settings{}
		unset = apperrors.ProblemNotConfigured
	}

	problems := make([]apperrors.FieldProblem, 0)
	for _, f := range s.Fields() {
		if f.Value == "" {
			problems = append(problems, apperrors.FieldProblem{Field: f.Name, Problem: unset})
		}
	}
	if len(problems) > 0 {
		return s, problems, nil
	}

	known, err := r.catalogIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range s.Fields() {
		if f.Kind == models.RefKindTaxCode {
			if _, ok := pseudoTaxCodes[f.Value]; ok {
				continue
			}
		}
		if _, ok := known[f.Kind][f.Value]; !ok {
			problems = append(problems, apperrors.FieldProblem{Field: f.Name, Problem: apperrors.ProblemStale})
		}
	}
	return s, problems, nil
}

func (r *MappingResolver) catalogIDs(ctx context.Context) (map[models.RefKind]map[string]struct{}, error) {
	lists := []struct {
		kind models.RefKind
		list func(context.Context) ([]models.LedgerRef, error)
	}{
		{models.RefKindAccount, r.catalog.ListAccounts},
		{models.RefKindVendor, r.catalog.ListVendors},
		{models.RefKindTaxCode, r.catalog.ListTaxCodes},
	}

	known := make(map[models.RefKind]map[string]struct{}, len(lists))
	for _, l := range lists {
		refs, err := l.list(ctx)
		if err != nil {
			r.logger.Error().Err(err).Str("kind", string(l.kind)).Msg("failed to list target ledger entities")
			return nil, err
		}
		ids := make(map[string]struct{}, len(refs))
		for _, ref := range refs {
			ids[ref.ID] = struct{}{}
		}
		known[l.kind] = ids
	}
	return known, nil
}

func (r *MappingResolver) fromCache() *models.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil || r.ttl <= 0 || r.now().Sub(r.cachedAt) >= r.ttl {
		return nil
	}
	s := *r.cached
	return &s
}

func (r *MappingResolver) store(s *models.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.cached = &cp
	r.cachedAt = r.now()
}
