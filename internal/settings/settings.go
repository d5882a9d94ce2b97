// Package settings implements the Settings Emitter (C10): encrypted
// handoff files the daemon writes at startup for a collaborating
// client to discover via environment variables. Grounded on
// security/security.go's BYOKEncryptor AES-GCM seal/open pattern,
// generalized from its per-org DEK envelope into a single derived
// key (there is no multi-tenant boundary in this daemon) and its wire
// format widened to the fixed nonce(12) || ciphertext || tag(16)
// shape spec.md §6 names.
package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// buildSecret is the build-time component folded into the key
// derivation alongside the machine identifier and user name. A real
// release pipeline would inject this via ldflags; it is a constant
// here because this daemon has no build pipeline of its own to wire
// it through.
var buildSecret = "orchestratord-settings-v1"

const keyInfo = "orchestratord-settings-aead"

// File basenames spec.md §6 fixes: one main settings file and one
// per policy category.
const (
	FileMain   = "orchestratord-settings.bin"
	FileAgents = "orchestratord-agents.bin"
	FileRules  = "orchestratord-rules.bin"
	FileHooks  = "orchestratord-hooks.bin"
)

// Env var names the daemon exports for a collaborating client to
// discover the settings path and API URL — spec.md §6: "names are
// part of the contract but unspecified here because they belong to
// that collaborator." These are this daemon's own choice of names.
const (
	EnvEnabled     = "ORCHD_SETTINGS_ENABLED"
	EnvSettingsDir = "ORCHD_SETTINGS_DIR"
	EnvAPIURL      = "ORCHD_API_URL"
)

// Emitter seals and writes the handoff files, and tracks what it
// wrote so shutdown can unlink and zero them.
type Emitter struct {
	key     []byte
	dir     string
	written []string
}

// New derives the AEAD key from (machine identifier, user name,
// build secret) via HKDF-SHA256, per spec.md §4.10. tempDirOverride
// and userOverride come from the two environment variables spec.md
// §6 documents as "consumed" (a temp-dir override and a user-name
// override "for key derivation testing").
func New(tempDirOverride, userOverride string) (*Emitter, error) {
	machineID, err := machineIdentifier()
	if err != nil {
		return nil, fmt.Errorf("settings: resolve machine identifier: %w", err)
	}
	userName := userOverride
	if userName == "" {
		userName = currentUserName()
	}

	ikm := []byte(machineID + "\x00" + userName + "\x00" + buildSecret)
	kdf := hkdf.New(sha256.New, ikm, nil, []byte(keyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("settings: derive key: %w", err)
	}

	dir := tempDirOverride
	if dir == "" {
		dir = os.TempDir()
	}

	return &Emitter{key: key, dir: dir}, nil
}

// Start seals and writes the four handoff files and exports the
// discovery environment variables. It is best-effort: spec.md §4.10
// says "if the temp directory is not writable the daemon logs and
// continues — these files are best-effort handoff, not required for
// core operation," so Start returns an error for the caller to log,
// never one that should abort startup.
func (e *Emitter) Start(apiURL string, payloads map[string][]byte) error {
	files := map[string][]byte{
		FileMain:   payloads[FileMain],
		FileAgents: payloads[FileAgents],
		FileRules:  payloads[FileRules],
		FileHooks:  payloads[FileHooks],
	}

	var firstErr error
	for name, plaintext := range files {
		path := filepath.Join(e.dir, name)
		sealed, err := e.seal(plaintext)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("settings: seal %s: %w", name, err)
			}
			continue
		}
		if err := os.WriteFile(path, sealed, 0o600); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("settings: write %s: %w", name, err)
			}
			continue
		}
		e.written = append(e.written, path)
	}

	os.Setenv(EnvEnabled, "1")
	os.Setenv(EnvSettingsDir, e.dir)
	os.Setenv(EnvAPIURL, apiURL)

	return firstErr
}

// Stop unlinks every file Start wrote, zeroing its contents first on
// a best-effort basis (spec.md §4.10: "unlinked and zeroed if
// possible").
func (e *Emitter) Stop() {
	for _, path := range e.written {
		zeroFile(path)
		_ = os.Remove(path)
	}
	e.written = nil
	os.Unsetenv(EnvEnabled)
	os.Unsetenv(EnvSettingsDir)
	os.Unsetenv(EnvAPIURL)
}

// seal implements spec.md §6's exact wire format: nonce(12) ||
// ciphertext || tag(16), produced by AES-256-GCM — the same
// aes.NewCipher → cipher.NewGCM → gcm.Seal(nonce, nonce, ...) shape
// BYOKEncryptor.Encrypt uses, minus its per-org AAD (there is only
// one key here, not one per tenant).
func (e *Emitter) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open reverses seal; kept for symmetry with the teacher's
// Seal/Open pair and exercised by settings_test.go to prove the
// wire format round-trips, though nothing in this daemon currently
// needs to read its own sealed files back.
func (e *Emitter) open(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("settings: sealed payload too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func zeroFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	zeros := make([]byte, info.Size())
	_, _ = f.WriteAt(zeros, 0)
}

// machineIdentifier resolves a stable per-machine string. There is no
// third-party machine-id library in the example pack's dependency
// surface to ground a fetch on, so this falls back to the stdlib's
// os.Hostname — stable across daemon restarts on the same host, which
// is all spec.md's "stable machine identifier" requires.
func machineIdentifier() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", err
	}
	return host, nil
}

func currentUserName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	return "unknown"
}
