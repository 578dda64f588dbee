package remote

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/hazyhaar/formfill/memory"
)

// DefaultCollection holds one document per entry, keyed by the
// normalized question.
const DefaultCollection = "answers"

// Firestore keeps the shared copy in a Firestore collection.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore connects to databaseID of projectID using the ambient
// Google credentials. An empty databaseID means "(default)".
func NewFirestore(ctx context.Context, projectID, databaseID, collection string) (*Firestore, error) {
	if projectID == "" {
		return nil, errors.New("remote/firestore: project id required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	if collection == "" {
		collection = DefaultCollection
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("remote/firestore: connect: %w", err)
	}
	return &Firestore{client: client, collection: collection}, nil
}

// Close releases the client.
func (f *Firestore) Close() error { return f.client.Close() }

func (f *Firestore) PullAll(ctx context.Context) ([]memory.Entry, error) {
	iter := f.client.Collection(f.collection).Documents(ctx)
	defer iter.Stop()
	var out []memory.Entry
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("remote/firestore: pull: %w", err)
		}
		var e memory.Entry
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("remote/firestore: decode %s: %w", doc.Ref.ID, err)
		}
		if e.Key == "" {
			e.Key = doc.Ref.ID
		}
		out = append(out, e)
	}
	return out, nil
}

// UpsertMany overwrites one document per entry. Writes are not atomic: a
// failure leaves the earlier documents written.
func (f *Firestore) UpsertMany(ctx context.Context, entries []memory.Entry) error {
	col := f.client.Collection(f.collection)
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if _, err := col.Doc(e.Key).Set(ctx, e); err != nil {
			return fmt.Errorf("remote/firestore: upsert %q: %w", e.Key, err)
		}
	}
	return nil
}

func (f *Firestore) DeleteOne(ctx context.Context, key string) error {
	if _, err := f.client.Collection(f.collection).Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("remote/firestore: delete %q: %w", key, err)
	}
	return nil
}
