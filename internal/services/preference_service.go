package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/repositories"
)

// DefaultLocationStorageKey is the key holding a visitor's chosen store location.
const DefaultLocationStorageKey = "lumberboss-location"

const (
	preferenceScopePrefix = "prefs"
	maxLocationLength     = 64
)

var errPreferenceStoreRequired = errors.New("preference service: key-value store is required")

// ErrPreferenceInvalidInput indicates a blank visitor id or malformed location.
var ErrPreferenceInvalidInput = errors.New("preference service: invalid input")

// ErrPreferenceUnavailable indicates storage could not be reached.
var ErrPreferenceUnavailable = errors.New("preference service: unavailable")

// LocationPreference is the store location a visitor picked. Selected is false until the
// visitor has chosen one.
type LocationPreference struct {
	VisitorID string `json:"visitorId"`
	Location  string `json:"location,omitempty"`
	Selected  bool   `json:"selected"`
}

// PreferenceServiceDeps wires preference storage.
type PreferenceServiceDeps struct {
	Store  repositories.KeyValueStore
	Key    string
	Logger *zap.Logger
}

type preferenceService struct {
	store  repositories.KeyValueStore
	key    string
	logger *zap.Logger
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(deps PreferenceServiceDeps) (PreferenceService, error) {
	if deps.Store == nil {
		return nil, errPreferenceStoreRequired
	}
	key := strings.TrimSpace(deps.Key)
	if key == "" {
		key = DefaultLocationStorageKey
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &preferenceService{store: deps.Store, key: key, logger: logger}, nil
}

func (s *preferenceService) Location(ctx context.Context, visitorID string) (LocationPreference, error) {
	visitor, err := normalizeVisitorID(visitorID)
	if err != nil {
		return LocationPreference{}, err
	}
	value, err := s.scoped(visitor).Get(ctx, s.key)
	switch {
	case repositories.IsNotFound(err):
		return LocationPreference{VisitorID: visitor}, nil
	case err != nil:
		s.logger.Warn("preference service: read failed", zap.String("visitor_id", visitor), zap.Error(err))
		return LocationPreference{}, fmt.Errorf("%w: %w", ErrPreferenceUnavailable, err)
	}
	return LocationPreference{VisitorID: visitor, Location: value, Selected: value != ""}, nil
}

func (s *preferenceService) SetLocation(ctx context.Context, visitorID, location string) (LocationPreference, error) {
	visitor, err := normalizeVisitorID(visitorID)
	if err != nil {
		return LocationPreference{}, err
	}
	location = strings.TrimSpace(location)
	if location == "" || len(location) > maxLocationLength {
		return LocationPreference{}, fmt.Errorf("%w: location must be 1-%d characters", ErrPreferenceInvalidInput, maxLocationLength)
	}
	if err := s.scoped(visitor).Set(ctx, s.key, location); err != nil {
		return LocationPreference{}, fmt.Errorf("%w: %w", ErrPreferenceUnavailable, err)
	}
	return LocationPreference{VisitorID: visitor, Location: location, Selected: true}, nil
}

func (s *preferenceService) scoped(visitorID string) repositories.KeyValueStore {
	return repositories.Scoped(s.store, preferenceScopePrefix+"/"+visitorID)
}

func normalizeVisitorID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: visitor id is required", ErrPreferenceInvalidInput)
	}
	return id, nil
}
