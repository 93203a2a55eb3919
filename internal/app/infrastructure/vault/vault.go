package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"krosty/internal/app/domain/token"
	"os"
	"path/filepath"
)

const PassphraseEnv = "KROSTY_VAULT_PASSPHRASE"

var (
	ErrNoPassphrase = errors.New("vault passphrase is empty")
	ErrEmpty        = fmt.Errorf("vault is empty: %w", token.ErrNotStored)
)

type fileFormat struct {
	Version    int       `json:"version"`
	Algorithm  string    `json:"algorithm"`
	KDF        string    `json:"kdf"`
	KDFParams  kdfParams `json:"kdf_params"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
}

type kdfParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
	Salt    string `json:"salt"`
}

// Vault keeps one secret encrypted on disk with a key derived from a
// passphrase. The cleartext never touches the file system.
type Vault struct {
	path       string
	passphrase []byte
	params     kdfParams
}

func New(path string, passphrase []byte) (*Vault, error) {
	if len(passphrase) == 0 {
		return nil, ErrNoPassphrase
	}
	return &Vault{
		path:       path,
		passphrase: passphrase,
		params:     kdfParams{Time: 3, Memory: 64 * 1024, Threads: 4},
	}, nil
}

// FromEnv builds a vault keyed by PassphraseEnv.
func FromEnv(path string) (*Vault, error) {
	return New(path, []byte(os.Getenv(PassphraseEnv)))
}

func (v *Vault) Path() string { return v.path }

func (v *Vault) Save(secret string) error {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	params := v.params
	params.Salt = base64.StdEncoding.EncodeToString(salt)

	aead, err := chacha20poly1305.NewX(v.derive(salt, params))
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	data, err := json.MarshalIndent(fileFormat{
		Version:    1,
		Algorithm:  "xchacha20-poly1305",
		KDF:        "argon2id",
		KDFParams:  params,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, []byte(secret), nil)),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}

	return writeAtomic(v.path, data)
}

func (v *Vault) Load() (string, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrEmpty
		}
		return "", fmt.Errorf("read vault: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse vault: %w", err)
	}
	if f.Version != 1 || f.Algorithm != "xchacha20-poly1305" || f.KDF != "argon2id" {
		return "", fmt.Errorf("unsupported vault format v%d %s/%s", f.Version, f.Algorithm, f.KDF)
	}

	salt, err := base64.StdEncoding.DecodeString(f.KDFParams.Salt)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.derive(salt, f.KDFParams))
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w (wrong passphrase?)", err)
	}

	return string(plaintext), nil
}

func (v *Vault) Clear() error {
	if err := os.Remove(v.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove vault: %w", err)
	}
	return nil
}

func (v *Vault) derive(salt []byte, p kdfParams) []byte {
	return argon2.IDKey(v.passphrase, salt, p.Time, p.Memory, p.Threads, chacha20poly1305.KeySize)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".vault-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	return os.Rename(tmpName, path)
}
