package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/securestore"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/keylock"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

var (
	// ErrNotSeeded is returned by Set for an app that has no stored records.
	ErrNotSeeded = errors.New("no permission records for mini-app")
	// ErrPersist marks a soft failure: the returned records are valid for the
	// current call but were not durably stored.
	ErrPersist = errors.New("failed to persist permission records")
	// ErrInvalidRecord is returned for updates with an unknown type or status.
	ErrInvalidRecord = errors.New("invalid permission record")
)

// Store persists permission records per mini-app.
type Store struct {
	secure  securestore.Store
	service string
	locks   *keylock.Map
	logger  *zap.Logger
}

// NewStore creates a permission store scoped to the given install scope.
func NewStore(secure securestore.Store, scope string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		secure:  secure,
		service: scope + ".miniapp.permissions",
		locks:   keylock.New(),
		logger:  logger.Named("permissions"),
	}
}

func account(appID string) string {
	return "permissions." + appID
}

// Get returns the records for appID, seeding the default list on first access.
func (s *Store) Get(ctx context.Context, appID string) ([]types.PermissionRecord, error) {
	if err := types.ValidateKey(appID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(appID)
	defer unlock()

	records, err := s.load(ctx, appID)
	switch {
	case err == nil:
		normalized, changed := normalize(records)
		if changed {
			if err := s.save(ctx, appID, normalized); err != nil {
				return normalized, err
			}
		}
		return normalized, nil
	case errors.Is(err, securestore.ErrNotFound):
	case errors.Is(err, securestore.ErrTampered), errors.Is(err, errDecode):
		s.logger.Warn("Discarding unreadable permission records",
			zap.String("app_id", appID), zap.Error(err))
	default:
		// Unknown read failure: fail closed without overwriting.
		return types.DefaultPermissionRecords(), fmt.Errorf("failed to read permission records: %w", err)
	}

	seed := types.DefaultPermissionRecords()
	if err := s.save(ctx, appID, seed); err != nil {
		return seed, err
	}
	s.logger.Debug("Seeded default permissions", zap.String("app_id", appID))
	return seed, nil
}

// Status returns the grant status of one permission type for appID.
func (s *Store) Status(ctx context.Context, appID string, t types.PermissionType) (types.GrantStatus, error) {
	records, err := s.Get(ctx, appID)
	if records == nil {
		return types.StatusDenied, err
	}
	record, ok := types.FindRecord(records, t)
	if !ok {
		return types.StatusDenied, fmt.Errorf("%w: %s", ErrInvalidRecord, t)
	}
	return record.Status, err
}

// Set merges updates into the stored records of appID and returns the result.
func (s *Store) Set(ctx context.Context, appID string, updates []types.PermissionRecord) ([]types.PermissionRecord, error) {
	if err := types.ValidateKey(appID); err != nil {
		return nil, err
	}
	for _, u := range updates {
		if _, ok := types.ParsePermissionType(string(u.Type)); !ok {
			return nil, fmt.Errorf("%w: type %q", ErrInvalidRecord, u.Type)
		}
		if !u.Status.Valid() {
			return nil, fmt.Errorf("%w: status %q", ErrInvalidRecord, u.Status)
		}
	}

	unlock := s.locks.Lock(appID)
	defer unlock()

	records, err := s.load(ctx, appID)
	if errors.Is(err, securestore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotSeeded, appID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read permission records: %w", err)
	}

	merged, _ := normalize(records)
	for _, u := range updates {
		for i := range merged {
			if merged[i].Type == u.Type {
				merged[i].Status = u.Status
				merged[i].Description = ""
			}
		}
	}

	if err := s.save(ctx, appID, merged); err != nil {
		return merged, err
	}
	s.logger.Info("Updated permissions", zap.String("app_id", appID), zap.Int("updates", len(updates)))
	return merged, nil
}

var errDecode = errors.New("undecodable permission records")

func (s *Store) load(ctx context.Context, appID string) ([]types.PermissionRecord, error) {
	data, err := s.secure.Read(ctx, s.service, account(appID))
	if err != nil {
		return nil, err
	}
	var records []types.PermissionRecord
	if err := sonic.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	return records, nil
}

func (s *Store) save(ctx context.Context, appID string, records []types.PermissionRecord) error {
	data, err := sonic.Marshal(records)
	if err != nil {
		s.logger.Warn("Failed to encode permission records", zap.String("app_id", appID), zap.Error(err))
		return fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}
	if err := s.secure.Write(ctx, s.service, account(appID), data); err != nil {
		s.logger.Warn("Failed to write permission records", zap.String("app_id", appID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// normalize returns exactly one record per supported type in canonical
// order. Missing types are added as denied, unknown types and duplicates
// are dropped.
func normalize(records []types.PermissionRecord) ([]types.PermissionRecord, bool) {
	byType := make(map[types.PermissionType]types.PermissionRecord, len(records))
	for _, r := range records {
		if _, seen := byType[r.Type]; seen {
			continue
		}
		if !r.Status.Valid() {
			r.Status = types.StatusDenied
		}
		byType[r.Type] = r
	}

	all := types.PermissionTypes()
	out := make([]types.PermissionRecord, len(all))
	changed := len(records) != len(all)
	for i, t := range all {
		r, ok := byType[t]
		if !ok {
			r = types.PermissionRecord{Type: t, Status: types.StatusDenied}
			changed = true
		}
		if i < len(records) && records[i] != r {
			changed = true
		}
		out[i] = r
	}
	return out, changed
}
