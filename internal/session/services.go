package session

import (
	"context"

	"github.com/cleared-dev/picker/internal/model"
)

// Uploader turns a statement file into transactions.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) ([]model.Transaction, error)
}

// Persister records a manually entered transaction remotely.
type Persister interface {
	Persist(ctx context.Context, t model.Transaction) error
}

// Submitter receives the transactions the user picked.
type Submitter interface {
	Submit(ctx context.Context, txns []model.Transaction) error
}

// Services bundles the remote collaborators a Session calls.
type Services struct {
	Uploader  Uploader
	Persister Persister
	Submitter Submitter
}
