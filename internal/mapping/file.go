package mapping

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"

	"github.com/dativo-io/cloak/internal/detect"
)

const (
	// FormatVersion is the persisted mapping file version.
	FormatVersion = 1

	// KDFIterations is the PBKDF2-SHA256 work factor used for new files.
	// Deliberately slow; no timeout may shorten this work.
	KDFIterations = 480_000

	keySize   = 32
	saltSize  = 16
	nonceSize = 24
)

// envelope is the on-disk layout. Without the password only the salt and
// verification metadata are accessible, never plaintext.
type envelope struct {
	Version          int    `json:"version"`
	Salt             string `json:"salt"`
	VerificationHash string `json:"verification_hash"`
	KDFIterations    int    `json:"kdf_iterations"`
	Payload          string `json:"payload"`
}

// payload is what the envelope's ciphertext decrypts to.
type payload struct {
	Mappings map[string][]payloadEntry `json:"mappings"`
	Counters map[string]int            `json:"counters"`
}

type payloadEntry struct {
	Placeholder string `json:"placeholder"`
	Original    string `json:"original"`
}

// deriveKey stretches the password into a symmetric key. Runs the full
// work factor; this is the slow, CPU-bound step that resists brute force.
func deriveKey(password string, salt []byte, iterations int) *[keySize]byte {
	var key [keySize]byte
	copy(key[:], pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New))
	return &key
}

// SaveToFile encrypts the mapping and writes the versioned envelope.
// Session-only stores (no password) refuse to persist.
func (s *Store) SaveToFile(ctx context.Context, path string) error {
	ctx, span := tracer.Start(ctx, "mapping.save")
	defer span.End()

	if s.password == "" {
		return ErrSessionOnlyStore
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	key := deriveKey(s.password, salt, KDFIterations)

	// bcrypt over the derived key: checked on load before any decrypt
	// attempt, so a wrong password fails fast and distinctly.
	verification, err := bcrypt.GenerateFromPassword(key[:], bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing verification key: %w", err)
	}

	plaintext, err := json.Marshal(s.snapshot())
	if err != nil {
		return fmt.Errorf("serializing mappings: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, key)

	env := envelope{
		Version:          FormatVersion,
		Salt:             base64.StdEncoding.EncodeToString(salt),
		VerificationHash: string(verification),
		KDFIterations:    KDFIterations,
		Payload:          base64.StdEncoding.EncodeToString(sealed),
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing envelope: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing mapping file: %w", err)
	}

	span.SetAttributes(attribute.Int("mapping.entry_count", s.Len()))
	return nil
}

// snapshot captures the serializable state under the read lock.
func (s *Store) snapshot() payload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := payload{
		Mappings: make(map[string][]payloadEntry, len(s.byType)),
		Counters: make(map[string]int, len(s.counters)),
	}
	for typ, entries := range s.byType {
		list := make([]payloadEntry, len(entries))
		for i, e := range entries {
			list[i] = payloadEntry{Placeholder: e.Placeholder, Original: e.Original}
		}
		p.Mappings[string(typ)] = list
	}
	for typ, n := range s.counters {
		p.Counters[string(typ)] = n
	}
	return p
}

// LoadFromFile opens a persisted mapping store. The flow is split into two
// phases with distinct failure modes: derive+verify (ErrWrongPassword),
// then decrypt+deserialize (ErrCorruptStore).
func LoadFromFile(ctx context.Context, path, password string, opts ...StoreOption) (*Store, error) {
	ctx, span := tracer.Start(ctx, "mapping.load")
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing mapping file: %w", err)
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported mapping file version %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}

	// Phase 1: derive and verify. The same derivation as on save must run
	// before any decrypt attempt; mismatch never reveals payload contents.
	key := deriveKey(password, salt, env.KDFIterations)
	if bcrypt.CompareHashAndPassword([]byte(env.VerificationHash), key[:]) != nil {
		return nil, ErrWrongPassword
	}

	// Phase 2: authenticated decryption. Any tampering is detected here.
	sealed, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", ErrCorruptStore)
	}
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("payload too short: %w", ErrCorruptStore)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("authenticated decryption failed: %w", ErrCorruptStore)
	}

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("deserializing payload: %w", ErrCorruptStore)
	}

	store := NewStore(password, opts...)
	types := make([]string, 0, len(p.Mappings))
	for typ := range p.Mappings {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		for _, e := range p.Mappings[typ] {
			store.insertLocked(e.Original, e.Placeholder, detect.PIIType(typ))
		}
	}
	for typ, n := range p.Counters {
		store.counters[detect.PIIType(typ)] = n
	}

	span.SetAttributes(attribute.Int("mapping.entry_count", store.Len()))
	return store, nil
}
