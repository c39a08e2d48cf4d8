// Package securefile stores JSON documents encrypted under a password.
// Keys are stretched with Argon2id and sealed with XChaCha20-Poly1305.
package securefile

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidPasswordOrCorrupt is returned when decryption fails. It does not
// say which of the two happened.
var ErrInvalidPasswordOrCorrupt = errors.New("invalid password or corrupted file")

const envelopeVersion = 1

// KDF holds the Argon2id cost parameters recorded in every envelope.
type KDF struct {
	Time    uint32 `json:"argon_time"`
	Memory  uint32 `json:"argon_memory_kib"`
	Threads uint8  `json:"argon_threads"`
	KeyLen  uint32 `json:"argon_key_len"`
}

var DefaultKDF = KDF{
	Time:    2,
	Memory:  64 * 1024,
	Threads: 1,
	KeyLen:  chacha20poly1305.KeySize,
}

// Envelope is the on-disk form of an encrypted document.
type Envelope struct {
	Version int `json:"version"`
	KDF
	Salt       string `json:"salt_b64"`
	Nonce      string `json:"nonce_b64"`
	Ciphertext string `json:"ct_b64"`
}

type Options struct {
	KDF KDF

	FilePerm      os.FileMode
	DirectoryPerm os.FileMode

	// AAD is bound into the ciphertext and must match on read.
	AAD []byte
}

func (o Options) withDefaults() Options {
	if o.KDF == (KDF{}) {
		o.KDF = DefaultKDF
	}
	if o.FilePerm == 0 {
		o.FilePerm = 0o600
	}
	if o.DirectoryPerm == 0 {
		o.DirectoryPerm = 0o700
	}
	return o
}

// Seal encrypts plain under password.
func Seal(plain, password []byte, opt Options) (*Envelope, error) {
	o := opt.withDefaults()
	if o.KDF.KeyLen != chacha20poly1305.KeySize {
		return nil, errors.Newf("securefile: key length %d unsupported", o.KDF.KeyLen)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "rand salt")
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "rand nonce")
	}

	aead, err := chacha20poly1305.NewX(deriveKey(password, salt, o.KDF))
	if err != nil {
		return nil, errors.Wrap(err, "aead")
	}

	return &Envelope{
		Version:    envelopeVersion,
		KDF:        o.KDF,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, o.AAD)),
	}, nil
}

// Open decrypts env. A wrong password, a wrong AAD and a tampered envelope
// all yield ErrInvalidPasswordOrCorrupt.
func Open(env *Envelope, password, aad []byte) ([]byte, error) {
	if env.Version != envelopeVersion {
		return nil, errors.Newf("securefile: unsupported version %d", env.Version)
	}
	if env.KeyLen != chacha20poly1305.KeySize {
		return nil, ErrInvalidPasswordOrCorrupt
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, errors.Wrap(err, "decode salt")
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, errors.Wrap(err, "decode nonce")
	}
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalidPasswordOrCorrupt
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "decode ciphertext")
	}

	aead, err := chacha20poly1305.NewX(deriveKey(password, salt, env.KDF))
	if err != nil {
		return nil, errors.Wrap(err, "aead")
	}
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrInvalidPasswordOrCorrupt
	}
	return plain, nil
}

func deriveKey(password, salt []byte, k KDF) []byte {
	return argon2.IDKey(password, salt, k.Time, k.Memory, k.Threads, k.KeyLen)
}

// WriteJSON encrypts v and atomically replaces path with the envelope.
func WriteJSON[T any](path string, v T, password []byte, opt Options) error {
	o := opt.withDefaults()

	if err := os.MkdirAll(filepath.Dir(path), o.DirectoryPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}

	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	env, err := Seal(plain, password, o)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return atomicWriteFile(path, b, o.FilePerm)
}

// ReadJSON decrypts the envelope at path into a T. A missing file is
// reported with an error matching os.ErrNotExist.
func ReadJSON[T any](path string, password []byte, opt Options) (T, error) {
	var zero T

	b, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("read file: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return zero, errors.Mark(errors.Wrap(err, "unmarshal envelope"), ErrInvalidPasswordOrCorrupt)
	}
	plain, err := Open(&env, password, opt.AAD)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(plain, &out); err != nil {
		return zero, fmt.Errorf("unmarshal json: %w", err)
	}
	return out, nil
}

// DefaultPath returns <user config dir>/<app>/<filename>.
func DefaultPath(app, filename string) (string, error) {
	if app == "" || filename == "" {
		return "", errors.New("securefile: app and filename are required")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, app, filename), nil
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
