package mongo

import (
	"chat-relay/errors"
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// Transactor runs units of work in a MongoDB multi-document transaction.
// Transactions need a replica set or a sharded cluster: on a standalone server
// it is built disabled, fn runs without a transaction and a failure between the
// message insert and the chat update is left for the reconciler to repair.
type Transactor struct {
	client  *mongo.Client
	enabled bool
}

func NewTransactor(client *mongo.Client, enabled bool) *Transactor {
	return &Transactor{client: client, enabled: enabled}
}

func (t *Transactor) Enabled() bool {
	return t.enabled
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !t.enabled || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := t.client.StartSession()
	if err != nil {
		return errors.NewStoreError("start session", err)
	}
	defer session.EndSession(ctx)

	// WithTransaction retries the callback on transient transaction errors
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
