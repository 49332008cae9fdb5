package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

// ErrNoSession is returned by Load when nobody is logged in.
var ErrNoSession = errors.New("no session")

// Store keeps the login session in device local storage.
type Store interface {
	// Load returns the current session or ErrNoSession.
	Load(ctx context.Context) (types.Session, error)
	// Save replaces the current session.
	Save(ctx context.Context, sess types.Session) error
	// Update applies fn to the current session and saves it. No other Update
	// or Save on the same store runs in between. It returns ErrNoSession
	// without calling fn when nobody is logged in.
	Update(ctx context.Context, fn func(*types.Session) error) error
	// Clear removes the session. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Configured sets up the session Store based on flags.
func Configured() Store {
	provider := lflag.String("session-store", "file", "Where to keep the login session (available: file, firestore)")
	encryptionKey := lflag.String("session-encryption-key", "", "Optional 32 character key used to encrypt the stored token")

	var p struct{ Store }

	fileStore := configuredFile()
	fs := configuredFirestore()

	lflag.Do(func() {
		if *encryptionKey != "" && len(*encryptionKey) != 32 {
			panic("session-encryption-key must be 32 characters")
		}
		switch *provider {
		case "file":
			fileStore.encryptionKey = *encryptionKey
			if err := fileStore.Validate(); err != nil {
				panic(fmt.Sprintf("session file validation failed: %v", err))
			}
			p.Store = fileStore
		case "firestore":
			fs.encryptionKey = *encryptionKey
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Store = fs
		default:
			panic(fmt.Sprintf("unknown session store: %s", *provider))
		}
	})

	return &p
}

// Token returns the stored token or ErrNoSession.
func Token(ctx context.Context, s Store) (string, error) {
	sess, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	if !sess.LoggedIn() {
		return "", ErrNoSession
	}
	return sess.Token, nil
}

// Login replaces any existing session with a new one for username.
func Login(ctx context.Context, s Store, username, token string) error {
	return s.Save(ctx, types.Session{
		Token:     token,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	})
}

// RecordSubmission remembers a submission on the current session.
func RecordSubmission(ctx context.Context, s Store, ref types.SubmissionRef) error {
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	return s.Update(ctx, func(sess *types.Session) error {
		sess.RecordSubmission(ref)
		return nil
	})
}
