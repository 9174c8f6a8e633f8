package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/models"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

const sealVersion = 1

// KMSAPI is the part of the KMS client used for envelope encryption.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type dataKey struct {
	plaintext  []byte
	ciphertext []byte
	keyID      string
}

// EncryptionManager seals payloads with a fresh AES-256 data key per payload.
// Data keys are wrapped by KMS when enabled and by a local key-encryption key otherwise.
type EncryptionManager struct {
	kmsClient KMSAPI
	kmsKeyID  string
	localKEK  []byte
	localID   string
	keyCache  sync.Map // wrapped DEK (base64) -> plaintext DEK
	logger    *zap.Logger
}

// NewEncryptionManager builds a KMS-backed manager when kmsClient is set, else a local one.
func NewEncryptionManager(cfg *config.Config, kmsClient KMSAPI, logger *zap.Logger) (*EncryptionManager, error) {
	em := &EncryptionManager{logger: logger}

	if cfg.KMS.Enabled {
		if kmsClient == nil || cfg.KMS.KeyID == "" {
			return nil, errors.New("kms enabled without a client or KMS_KEY_ID")
		}
		em.kmsClient = kmsClient
		em.kmsKeyID = cfg.KMS.KeyID
		return em, nil
	}

	kek, err := localKey(cfg)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(kek)
	em.localKEK = kek
	em.localID = "local:" + hex.EncodeToString(sum[:4])
	return em, nil
}

func localKey(cfg *config.Config) ([]byte, error) {
	if cfg.KMS.LocalKey == "" {
		if cfg.IsProduction() {
			return nil, errors.New("SEAL_LOCAL_KEY is required when KMS is disabled")
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		return key, nil
	}
	key, err := base64.StdEncoding.DecodeString(cfg.KMS.LocalKey)
	if err != nil || len(key) != 32 {
		return nil, errors.New("SEAL_LOCAL_KEY must be 32 bytes, base64 encoded")
	}
	return key, nil
}

// Ephemeral reports a dev-only random key that will not survive a restart.
func (em *EncryptionManager) Ephemeral(cfg *config.Config) bool {
	return em.kmsClient == nil && cfg.KMS.LocalKey == ""
}

func (em *EncryptionManager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if em.kmsClient != nil {
		out, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(em.kmsKeyID),
			KeySpec: types.DataKeySpecAes256,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate data key: %w", err)
		}
		return &dataKey{plaintext: out.Plaintext, ciphertext: out.CiphertextBlob, keyID: em.kmsKeyID}, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	nonce, wrapped, err := gcmSeal(em.localKEK, key, []byte(em.localID))
	if err != nil {
		return nil, err
	}
	return &dataKey{plaintext: key, ciphertext: append(nonce, wrapped...), keyID: em.localID}, nil
}

func (em *EncryptionManager) unwrapDataKey(ctx context.Context, sealed *models.SealedPayload) ([]byte, error) {
	cacheKey := base64.StdEncoding.EncodeToString(sealed.EncryptedDEK)
	if cached, ok := em.keyCache.Load(cacheKey); ok {
		return cached.([]byte), nil
	}

	var key []byte
	if em.kmsClient != nil {
		out, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: sealed.EncryptedDEK,
			KeyId:          aws.String(sealed.KeyID),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		key = out.Plaintext
	} else {
		if sealed.KeyID != em.localID {
			return nil, fmt.Errorf("%w: unknown key %s", ErrDecryptionFailed, sealed.KeyID)
		}
		var err error
		key, err = gcmOpen(em.localKEK, sealed.EncryptedDEK, []byte(em.localID))
		if err != nil {
			return nil, err
		}
	}

	em.keyCache.Store(cacheKey, key)
	return key, nil
}

// Seal encrypts plaintext bound to aad, which must be presented again to Open.
func (em *EncryptionManager) Seal(ctx context.Context, plaintext []byte, aad string) (*models.SealedPayload, error) {
	dk, err := em.generateDataKey(ctx)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := gcmSeal(dk.plaintext, plaintext, []byte(aad))
	if err != nil {
		return nil, err
	}
	em.keyCache.Store(base64.StdEncoding.EncodeToString(dk.ciphertext), dk.plaintext)

	return &models.SealedPayload{
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		EncryptedDEK: dk.ciphertext,
		KeyID:        dk.keyID,
		Version:      sealVersion,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (em *EncryptionManager) Open(ctx context.Context, sealed *models.SealedPayload, aad string) ([]byte, error) {
	if sealed == nil || sealed.Version != sealVersion {
		return nil, fmt.Errorf("%w: unsupported payload", ErrDecryptionFailed)
	}
	key, err := em.unwrapDataKey(ctx, sealed)
	if err != nil {
		return nil, err
	}
	return gcmOpen(key, append(append([]byte{}, sealed.Nonce...), sealed.Ciphertext...), []byte(aad))
}

// SealJSON marshals v and seals it.
func (em *EncryptionManager) SealJSON(ctx context.Context, v any, aad string) (*models.SealedPayload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return em.Seal(ctx, raw, aad)
}

func (em *EncryptionManager) OpenJSON(ctx context.Context, sealed *models.SealedPayload, aad string, v any) error {
	raw, err := em.Open(ctx, sealed, aad)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return nil
}

// ClearCache drops every cached plaintext data key.
func (em *EncryptionManager) ClearCache() {
	em.keyCache.Range(func(key, _ any) bool {
		em.keyCache.Delete(key)
		return true
	})
}

func gcmSeal(key, plaintext, aad []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, aad), nil
}

// gcmOpen expects the nonce prepended to the ciphertext.
func gcmOpen(key, data, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
