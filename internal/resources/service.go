package resources

import (
	"context"
	"database/sql"
	"errors"

	"github.com/carebridge/referral-hub/internal/data"
)

// Service is the resource store accessor: every read and write of a
// hospital's snapshot goes through here, including staff edits, so direct
// edits and referral allocation serialize on the same row lock.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Get returns the hospital's snapshot, creating and persisting the all-zero
// default when none exists yet.
func (s *Service) Get(ctx context.Context, hospitalID string) (*Snapshot, error) {
	repo := data.ResourceModel{DB: s.db}

	doc, err := repo.GetDoc(ctx, hospitalID)
	if errors.Is(err, data.ErrRecordNotFound) {
		snap := DefaultSnapshot()
		b, mErr := snap.Marshal()
		if mErr != nil {
			return nil, mErr
		}
		if iErr := repo.InsertDoc(ctx, hospitalID, b); iErr != nil {
			return nil, iErr
		}
		// A concurrent creator may have won the insert; re-read either way.
		if doc, err = repo.GetDoc(ctx, hospitalID); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return ParseSnapshot(doc)
}

// SetField writes a single field by dotted path inside a serializable
// transaction, clamping the value at zero. The persisted oxygen shape is
// preserved by the snapshot codec.
func (s *Service) SetField(ctx context.Context, hospitalID, path string, value int) (*Snapshot, error) {
	var out *Snapshot
	err := data.RunSerializable(ctx, s.db, data.DefaultTxAttempts, func(tx *sql.Tx) error {
		repo := data.ResourceModel{DB: tx}

		doc, err := repo.GetDocForUpdate(ctx, hospitalID)
		if errors.Is(err, data.ErrRecordNotFound) {
			snap := DefaultSnapshot()
			b, mErr := snap.Marshal()
			if mErr != nil {
				return mErr
			}
			if iErr := repo.InsertDoc(ctx, hospitalID, b); iErr != nil {
				return iErr
			}
			doc = b
		} else if err != nil {
			return err
		}

		snap, err := ParseSnapshot(doc)
		if err != nil {
			return err
		}
		if err := snap.SetPath(path, value); err != nil {
			return err
		}

		b, err := snap.Marshal()
		if err != nil {
			return err
		}
		if _, err := repo.UpdateDoc(ctx, hospitalID, b); err != nil {
			return err
		}
		out = snap
		return nil
	})
	return out, err
}

// ApplyAllocationTx runs the read-validate-debit sequence against the
// caller's transaction. A missing snapshot is fatal here: inside the
// reservation there is no self-heal, the receiver simply has nothing to
// allocate from.
func ApplyAllocationTx(ctx context.Context, tx *sql.Tx, hospitalID string, req Request) (*Snapshot, []Shortage, error) {
	repo := data.ResourceModel{DB: tx}

	doc, err := repo.GetDocForUpdate(ctx, hospitalID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, nil, &AllocationError{Reason: ReasonMissingResourceDoc}
	}
	if err != nil {
		return nil, nil, err
	}

	snap, err := ParseSnapshot(doc)
	if err != nil {
		return nil, nil, err
	}

	if ok, shortages := CheckSufficiency(snap, req); !ok {
		return nil, shortages, nil
	}

	snap.Allocate(req)

	b, err := snap.Marshal()
	if err != nil {
		return nil, nil, err
	}
	if _, err := repo.UpdateDoc(ctx, hospitalID, b); err != nil {
		return nil, nil, err
	}
	return snap, nil, nil
}

// ApplyAllocation is the standalone reservation transaction: one atomic
// read-modify-write with transparent conflict retry.
func (s *Service) ApplyAllocation(ctx context.Context, hospitalID string, req Request) (*Snapshot, []Shortage, error) {
	var (
		snap      *Snapshot
		shortages []Shortage
	)
	err := data.RunSerializable(ctx, s.db, data.DefaultTxAttempts, func(tx *sql.Tx) error {
		var err error
		snap, shortages, err = ApplyAllocationTx(ctx, tx, hospitalID, req)
		if err != nil {
			return err
		}
		if len(shortages) > 0 {
			return errAbortShortage
		}
		return nil
	})
	if errors.Is(err, errAbortShortage) {
		return nil, shortages, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return snap, nil, nil
}

// errAbortShortage rolls the transaction back without surfacing as a
// failure; the shortage list carries the outcome.
var errAbortShortage = errors.New("insufficient resources")
