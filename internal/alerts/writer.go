package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"riskline/internal/domain"
)

// Store is the slice of the repository the writer needs.
type Store interface {
	InsertAlert(ctx context.Context, a domain.Alert) error
}

type Writer struct {
	Store Store
	Now   func() time.Time
}

// Emit persists a new unread alert and returns it with id and timestamp set.
func (w Writer) Emit(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	a.ID = uuid.NewString()
	a.Read = false
	a.CreatedAt = now().UTC().Format(time.RFC3339)
	if err := w.Store.InsertAlert(ctx, a); err != nil {
		return domain.Alert{}, err
	}
	return a, nil
}

func Ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
