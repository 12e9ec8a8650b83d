package registry

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const requestTimeout = 30 * time.Second

// Firestore keeps the registry in a Firestore collection, one document per
// mosque key. Suits deployments that run on stateless machines, where a
// local registry file would vanish with the instance.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore creates a Firestore-backed registry.
func NewFirestore(ctx context.Context, projectID, collection string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Firestore{
		client:     client,
		collection: collection,
	}, nil
}

// Close closes the Firestore client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

// Mosque keys are single sanitized path segments, so they are used as
// document ids directly and the collection stays browsable in the console.
type entry struct {
	Key        string    `firestore:"key"`
	CalendarID string    `firestore:"calendarId"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// Get returns the calendar id registered for key, if any.
func (f *Firestore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	snap, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading registry document: %w", err)
	}

	var e entry
	if err := snap.DataTo(&e); err != nil {
		return "", false, fmt.Errorf("parsing registry document %s: %w", snap.Ref.ID, err)
	}
	if e.CalendarID == "" {
		return "", false, nil
	}
	return e.CalendarID, true, nil
}

// Set registers the calendar id for key, replacing any previous entry.
func (f *Firestore) Set(key, calendarID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	_, err := f.client.Collection(f.collection).Doc(key).Set(ctx, entry{
		Key:        key,
		CalendarID: calendarID,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("writing registry document: %w", err)
	}
	return nil
}
