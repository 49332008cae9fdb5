package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps the session in Google Cloud Firestore so several
// devices sharing a profile see the same login and submission history.
//
// Layout:
//
//	profiles/{profile}/config/session          {json, version}
//	profiles/{profile}/submissions/{id}         {json, createdAt}
type FirestoreStore struct {
	client        *firestore.Client
	projectID     string
	database      string
	profile       string
	encryptionKey string

	mu sync.Mutex
}

func configuredFirestore() *FirestoreStore {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	profile := lflag.String("session-profile", "default", "Profile name the session is stored under in Firestore")

	f := &FirestoreStore{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.profile = *profile

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the store is properly configured.
func (f *FirestoreStore) Validate() error {
	if f.profile == "" {
		return errors.New("session-profile cannot be empty")
	}
	return nil
}

// Init creates the Firestore client. It must be called before the store is
// used.
func (f *FirestoreStore) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreStore) profileDoc() *firestore.DocumentRef {
	return f.client.Collection("profiles").Doc(f.profile)
}

func (f *FirestoreStore) sessionDoc() *firestore.DocumentRef {
	return f.profileDoc().Collection("config").Doc("session")
}

func (f *FirestoreStore) submissions() *firestore.CollectionRef {
	return f.profileDoc().Collection("submissions")
}

// Load reads the session document and the most recent submissions.
func (f *FirestoreStore) Load(ctx context.Context) (types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(ctx)
}

func (f *FirestoreStore) load(ctx context.Context) (types.Session, error) {
	doc, err := f.sessionDoc().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Session{}, ErrNoSession
		}
		return types.Session{}, fmt.Errorf("failed to fetch session doc: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "session doc missing json", slog.String("profile", f.profile))
		return types.Session{}, fmt.Errorf("session document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "session doc json not string", slog.String("profile", f.profile))
		return types.Session{}, fmt.Errorf("session 'json' field is not a string")
	}

	sess, err := decodeDocument(ctx, f.encryptionKey, []byte(jsonStr))
	if err != nil {
		return types.Session{}, err
	}
	if !sess.LoggedIn() {
		return types.Session{}, ErrNoSession
	}

	sess.Submissions, err = f.listSubmissions(ctx)
	if err != nil {
		return types.Session{}, err
	}
	return sess, nil
}

// listSubmissions returns up to MaxSessionSubmissions refs, oldest first.
func (f *FirestoreStore) listSubmissions(ctx context.Context) ([]types.SubmissionRef, error) {
	iter := f.submissions().
		OrderBy("createdAt", firestore.Desc).
		Limit(types.MaxSessionSubmissions).
		Documents(ctx)
	defer iter.Stop()

	var refs []types.SubmissionRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating submissions: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "submission doc missing json", slog.String("submissionID", doc.Ref.ID), slog.String("profile", f.profile))
			return nil, fmt.Errorf("submission document %s missing 'json' field: %w", doc.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("submission document %s 'json' field is not string", doc.Ref.ID)
		}

		var ref types.SubmissionRef
		if err := json.Unmarshal([]byte(jsonStr), &ref); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal submission", slog.String("submissionID", doc.Ref.ID), slog.Any("err", err))
			return nil, fmt.Errorf("failed to unmarshal submission (id=%s): %w", doc.Ref.ID, err)
		}
		refs = append(refs, ref)
	}
	slices.Reverse(refs)
	return refs, nil
}

// Save writes the session document and makes the submissions subcollection
// match sess.Submissions. Submissions from a previous login are deleted.
func (f *FirestoreStore) Save(ctx context.Context, sess types.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(ctx, sess)
}

func (f *FirestoreStore) save(ctx context.Context, sess types.Session) error {
	refs := sess.Submissions
	sess.Submissions = nil

	keep := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref.ID != "" {
			keep[ref.ID] = true
		}
	}
	if err := f.deleteSubmissions(ctx, keep); err != nil {
		return err
	}

	data, err := encodeDocument(ctx, f.encryptionKey, sess)
	if err != nil {
		return err
	}
	_, err = f.sessionDoc().Set(ctx, map[string]interface{}{
		"json":    string(data),
		"version": documentVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, ref := range refs {
		if ref.ID == "" {
			continue
		}
		jsonBytes, err := json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("failed to marshal submission: %w", err)
		}
		_, err = f.submissions().Doc(ref.ID).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"createdAt": ref.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to save submission %s: %w", ref.ID, err)
		}
	}
	return nil
}

// Update runs fn between a load and a save. Concurrent updates are
// serialized within this process only.
func (f *FirestoreStore) Update(ctx context.Context, fn func(*types.Session) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, err := f.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&sess); err != nil {
		return err
	}
	return f.save(ctx, sess)
}

// deleteSubmissions removes every submission doc whose id is not in keep.
func (f *FirestoreStore) deleteSubmissions(ctx context.Context, keep map[string]bool) error {
	iter := f.submissions().Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error iterating submissions: %w", err)
		}
		if keep[doc.Ref.ID] {
			continue
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete submission %s: %w", doc.Ref.ID, err)
		}
	}
}

// Clear deletes the session document and every remembered submission.
func (f *FirestoreStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.deleteSubmissions(ctx, nil); err != nil {
		return err
	}
	if _, err := f.sessionDoc().Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
