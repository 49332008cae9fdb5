package session

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shouldiwash/shouldiwash/pkg/log"
	"github.com/shouldiwash/shouldiwash/pkg/types"
)

const documentVersion = 1

// document is the serialized form of a session shared by every backend. When
// an encryption key is configured the token is moved into SealedToken.
type document struct {
	Version     int           `json:"version"`
	Session     types.Session `json:"session"`
	SealedToken []byte        `json:"sealedToken,omitempty"`
}

func newGCM(ctx context.Context, encryptionKey string) (cipher.AEAD, error) {
	key := []byte(encryptionKey)
	if len(key) != 32 {
		log.Ctx(ctx).ErrorContext(ctx, "invalid encryption key length (must be 32 bytes)", slog.Int("length", len(key)))
		return nil, errors.New("invalid encryption key length (must be 32 bytes)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create cipher", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create gcm", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}

func sealToken(ctx context.Context, encryptionKey, token string) ([]byte, error) {
	gcm, err := newGCM(ctx, encryptionKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to generate nonce", slog.Any("error", err))
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, []byte(token), nil), nil
}

func openToken(ctx context.Context, encryptionKey string, sealed []byte) (string, error) {
	gcm, err := newGCM(ctx, encryptionKey)
	if err != nil {
		return "", err
	}

	if len(sealed) < gcm.NonceSize() {
		log.Ctx(ctx).ErrorContext(ctx, "malformed encrypted token", slog.Int("length", len(sealed)))
		return "", errors.New("malformed encrypted token")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decrypt token", slog.Any("error", err))
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(plaintext), nil
}

func encodeDocument(ctx context.Context, encryptionKey string, sess types.Session) ([]byte, error) {
	doc := document{Version: documentVersion, Session: sess}
	if encryptionKey != "" && sess.Token != "" {
		sealed, err := sealToken(ctx, encryptionKey, sess.Token)
		if err != nil {
			return nil, err
		}
		doc.SealedToken = sealed
		doc.Session.Token = ""
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return b, nil
}

func decodeDocument(ctx context.Context, encryptionKey string, data []byte) (types.Session, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if doc.Version > documentVersion {
		return types.Session{}, fmt.Errorf("unknown session version: %d", doc.Version)
	}
	if len(doc.SealedToken) > 0 {
		if encryptionKey == "" {
			log.Ctx(ctx).ErrorContext(ctx, "cannot decrypt token: no encryption key configured")
			return types.Session{}, errors.New("cannot decrypt token: no encryption key configured")
		}
		token, err := openToken(ctx, encryptionKey, doc.SealedToken)
		if err != nil {
			return types.Session{}, err
		}
		doc.Session.Token = token
	}
	return doc.Session, nil
}
