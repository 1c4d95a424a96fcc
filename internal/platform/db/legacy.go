package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/ehr/theatre/internal/domain/theatre"
)

// ErrLegacyRouteNotFound is returned when no local mapping exists.
var ErrLegacyRouteNotFound = errors.New("legacy route not found")

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// LegacyRouteStore maps legacy (resource, legacy id) pairs to theatre cases
// in the theatre_legacy_routes table.
type LegacyRouteStore struct {
	db queryer
}

var _ theatre.LegacyRouteResolver = (*LegacyRouteStore)(nil)

func NewLegacyRouteStore(db queryer) *LegacyRouteStore {
	return &LegacyRouteStore{db: db}
}

func normalizeResource(resource string) string {
	return strings.ToLower(strings.TrimSpace(resource))
}

func (s *LegacyRouteStore) ResolveLegacyRoute(ctx context.Context, resource, legacyID string) (*theatre.LegacyRoute, error) {
	var (
		route         theatre.LegacyRoute
		panel, action *string
	)
	err := s.db.QueryRow(ctx,
		`SELECT theatre_case_id, panel, action FROM theatre_legacy_routes WHERE resource = $1 AND legacy_id = $2`,
		normalizeResource(resource), strings.TrimSpace(legacyID),
	).Scan(&route.TheatreCaseID, &panel, &action)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLegacyRouteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query legacy route %s/%s: %w", resource, legacyID, err)
	}
	if panel != nil {
		route.Panel = *panel
	}
	if action != nil {
		route.Action = *action
	}
	return &route, nil
}

// Save records or replaces a mapping.
func (s *LegacyRouteStore) Save(ctx context.Context, resource, legacyID string, route theatre.LegacyRoute) error {
	if strings.TrimSpace(route.TheatreCaseID) == "" {
		return fmt.Errorf("save legacy route %s/%s: empty theatre case id", resource, legacyID)
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO theatre_legacy_routes (resource, legacy_id, theatre_case_id, panel, action)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
ON CONFLICT (resource, legacy_id) DO UPDATE
SET theatre_case_id = EXCLUDED.theatre_case_id, panel = EXCLUDED.panel, action = EXCLUDED.action, updated_at = NOW()`,
		normalizeResource(resource), strings.TrimSpace(legacyID), route.TheatreCaseID, route.Panel, route.Action,
	)
	if err != nil {
		return fmt.Errorf("save legacy route %s/%s: %w", resource, legacyID, err)
	}
	return nil
}

// CachingResolver answers from the local store and falls back to the
// backend. Backend answers are written back to the store.
type CachingResolver struct {
	store   *LegacyRouteStore
	backend theatre.LegacyRouteResolver
	logger  zerolog.Logger
}

var _ theatre.LegacyRouteResolver = (*CachingResolver)(nil)

func NewCachingResolver(store *LegacyRouteStore, backend theatre.LegacyRouteResolver, logger zerolog.Logger) *CachingResolver {
	return &CachingResolver{
		store:   store,
		backend: backend,
		logger:  logger.With().Str("component", "legacy_routes").Logger(),
	}
}

func (r *CachingResolver) ResolveLegacyRoute(ctx context.Context, resource, legacyID string) (*theatre.LegacyRoute, error) {
	route, err := r.store.ResolveLegacyRoute(ctx, resource, legacyID)
	if err == nil {
		return route, nil
	}
	if !errors.Is(err, ErrLegacyRouteNotFound) {
		r.logger.Warn().Err(err).Msg("local legacy route lookup failed; asking backend")
	}
	if r.backend == nil {
		return nil, err
	}

	route, err = r.backend.ResolveLegacyRoute(ctx, resource, legacyID)
	if err != nil {
		return nil, err
	}
	if route == nil || route.TheatreCaseID == "" {
		return nil, ErrLegacyRouteNotFound
	}
	if err := r.store.Save(ctx, resource, legacyID, *route); err != nil {
		r.logger.Warn().Err(err).Str("resource", resource).Str("legacy_id", legacyID).Msg("failed to cache legacy route")
	}
	return route, nil
}
