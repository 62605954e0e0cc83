package pdfgen

import (
	"context"
	"errors"
	"time"
)

// DefaultRetentionTTL bounds how long link-mode documents stay downloadable.
const DefaultRetentionTTL = 24 * time.Hour

// RetentionPolicy decides artifact TTLs. A zero TTL keeps artifacts forever.
type RetentionPolicy interface {
	TTL(ctx context.Context, mode Mode) (time.Duration, error)
}

// RetentionRules configures TTL lookups.
type RetentionRules struct {
	DefaultTTL time.Duration
	ByMode     map[Mode]time.Duration
}

// TTL returns the TTL for documents produced in mode.
func (r RetentionRules) TTL(ctx context.Context, mode Mode) (time.Duration, error) {
	_ = ctx
	if ttl, ok := r.ByMode[mode]; ok {
		if ttl < 0 {
			return 0, NewError(KindValidation, "retention ttl must not be negative", nil)
		}
		return ttl, nil
	}
	if r.DefaultTTL < 0 {
		return 0, NewError(KindValidation, "retention ttl must not be negative", nil)
	}
	return r.DefaultTTL, nil
}

// Sweeper removes expired artifacts and prunes expired ledger records. Either
// Store or Ledger may be nil, but not both.
type Sweeper struct {
	Store  ArtifactStore
	Ledger Ledger
	Logger Logger
	Now    func() time.Time
	// OrphanTTL removes stored files that have no ledger record once they
	// are older than the TTL. Zero disables orphan collection.
	OrphanTTL time.Duration
}

// Sweep deletes expired artifacts and ledger records and returns how many
// artifacts were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s == nil || (s.Store == nil && s.Ledger == nil) {
		return 0, NewError(KindNotConfigured, "sweeper has neither store nor ledger", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := s.now()
	removed, pruned := 0, 0
	var errs []error

	if s.Ledger != nil {
		records, err := s.Ledger.Expired(ctx, now)
		if err != nil {
			return 0, err
		}
		for _, record := range records {
			if record.ArtifactKey != "" && s.Store != nil {
				if err := s.Store.Delete(ctx, record.ArtifactKey); err != nil {
					errs = append(errs, err)
					continue
				}
				removed++
			}
			if err := s.Ledger.Delete(ctx, record.ID); err != nil && KindFromError(err) != KindNotFound {
				errs = append(errs, err)
				continue
			}
			pruned++
		}
	}
	if pruned > 0 {
		s.logger().Debugf("retention sweep pruned %d ledger record(s)", pruned)
	}
	if s.Store == nil {
		return removed, errors.Join(errs...)
	}

	refs, err := s.Store.List(ctx)
	if err != nil {
		errs = append(errs, err)
		return removed, errors.Join(errs...)
	}
	for _, ref := range refs {
		expired, err := s.isExpired(ctx, ref, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !expired {
			continue
		}
		if err := s.Store.Delete(ctx, ref.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger().Infof("retention sweep removed %d artifact(s)", removed)
	}
	return removed, errors.Join(errs...)
}

func (s *Sweeper) isExpired(ctx context.Context, ref ArtifactRef, now time.Time) (bool, error) {
	if !ref.Meta.ExpiresAt.IsZero() && !ref.Meta.ExpiresAt.After(now) {
		return true, nil
	}
	if s.OrphanTTL <= 0 || ref.Meta.CreatedAt.IsZero() {
		return false, nil
	}
	if ref.Meta.CreatedAt.Add(s.OrphanTTL).After(now) {
		return false, nil
	}
	if s.Ledger == nil {
		return true, nil
	}
	known, err := s.Ledger.HasArtifact(ctx, ref.Key)
	if err != nil {
		return false, err
	}
	return !known, nil
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Sweeper) logger() Logger {
	if s.Logger == nil {
		return NopLogger{}
	}
	return s.Logger
}
