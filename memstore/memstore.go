// Package memstore provides reference, in-memory implementations of the
// webauthn package's collaborator interfaces (CredentialRepository,
// MetadataService) plus a bounded pending-challenge cache. The credential
// store and the challenge cache are backed by github.com/hashicorp/golang-lru
// (lru.New(n)); the metadata service is a plain map. None of this is part of the verification core itself —
// callers are free to back CredentialRepository with real storage
// instead.
package memstore

import (
	"bytes"
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"webauthnrp"
)

// CredentialStore is a CredentialRepository backed by a bounded LRU of
// registered credentials, keyed by base64url-free raw credential ID.
type CredentialStore struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type storedCredential struct {
	key        *webauthn.COSEKey
	signCount  uint32
	userHandle []byte
}

// NewCredentialStore returns a CredentialStore holding at most size
// credentials; the least recently used registration is evicted once full.
func NewCredentialStore(size int) (*CredentialStore, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{cache: c}, nil
}

// Put registers credID with key/signCount/userHandle. Tests and demo
// callers use this after a successful FinishRegistration; it is not part
// of the CredentialRepository interface itself.
func (s *CredentialStore) Put(credID []byte, key *webauthn.COSEKey, signCount uint32, userHandle []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(string(credID), &storedCredential{key: key, signCount: signCount, userHandle: userHandle})
}

func (s *CredentialStore) Lookup(ctx context.Context, credentialID, userHandle []byte) (*webauthn.COSEKey, uint32, []byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(string(credentialID))
	if !ok {
		return nil, 0, nil, false, nil
	}
	sc := v.(*storedCredential)
	if len(userHandle) != 0 && !bytes.Equal(userHandle, sc.userHandle) {
		return nil, 0, nil, false, nil
	}
	return sc.key, sc.signCount, sc.userHandle, true, nil
}

func (s *CredentialStore) Exists(ctx context.Context, credentialID []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Contains(string(credentialID)), nil
}

func (s *CredentialStore) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(string(credentialID))
	if !ok {
		return errors.New("memstore: unknown credential")
	}
	sc := v.(*storedCredential)
	sc.signCount = signCount
	s.cache.Add(string(credentialID), sc)
	return nil
}

// ChallengeStore is caller-side bookkeeping for a bounded cache of
// request-id -> pending challenge, as a plain size-bounded LRU — TTL
// eviction is left to the caller, since golang-lru's basic Cache has no
// expiry hook.
type ChallengeStore struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewChallengeStore returns a ChallengeStore holding at most size pending
// requests.
func NewChallengeStore(size int) (*ChallengeStore, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ChallengeStore{cache: c}, nil
}

// Put remembers challenge under requestID, overwriting any prior entry.
func (s *ChallengeStore) Put(requestID string, challenge []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(requestID, challenge)
}

// Take returns and removes the challenge stored under requestID,
// enforcing at-most-once completion: a concurrent second Take for the
// same requestID observes ok=false.
func (s *ChallengeStore) Take(requestID string) (challenge []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(requestID)
	if !ok {
		return nil, false
	}
	s.cache.Remove(requestID)
	return v.([]byte), true
}

// StaticMetadataService is a MetadataService backed by a fixed,
// caller-populated map of AAGUID (hex-less raw bytes, as a string key) to
// trusted root certificates (DER-encoded).
type StaticMetadataService struct {
	mu    sync.RWMutex
	roots map[string][][]byte
}

// NewStaticMetadataService returns an empty StaticMetadataService; use
// Trust to register root certificates per AAGUID.
func NewStaticMetadataService() *StaticMetadataService {
	return &StaticMetadataService{roots: make(map[string][][]byte)}
}

// Trust registers the root certificates that attestation trust paths for
// aaguid must chain to.
func (m *StaticMetadataService) Trust(aaguid []byte, roots [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[string(aaguid)] = roots
}

func (m *StaticMetadataService) GetAttestation(aaguid []byte, trustPath [][]byte) (bool, interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roots, ok := m.roots[string(aaguid)]
	if !ok || len(trustPath) == 0 {
		return false, nil, nil
	}
	last := trustPath[len(trustPath)-1]
	for _, root := range roots {
		if string(root) == string(last) {
			return true, nil, nil
		}
	}
	return false, nil, nil
}
