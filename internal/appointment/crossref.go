package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CrossReferenceValidator checks that a clinical record attached to a booking
// was filed under the same patient-provider link as the booking. A record
// from another link must not become reachable through this one.
type CrossReferenceValidator struct {
	records Directory
}

func NewCrossReferenceValidator(records Directory) *CrossReferenceValidator {
	return &CrossReferenceValidator{records: records}
}

func (v *CrossReferenceValidator) Validate(ctx context.Context, recordID, linkID uuid.UUID) error {
	rec, err := v.records.GetClinicalRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("load clinical record: %w", err)
	}
	if rec.LinkID != linkID {
		return ErrCrossReferenceMismatch
	}
	return nil
}
