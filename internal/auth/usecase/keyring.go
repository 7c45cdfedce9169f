package usecase

import (
	"crypto/rsa"
	"sync"
	"time"
)

// keyring caches the active signer and the public keys of every key still
// inside its verification window, so the hot verify path stays off the
// database. The repository remains the source of truth: a cache miss falls
// through to a GetByKid lookup.
type keyring struct {
	mu sync.RWMutex

	signerKid string
	signerKey *rsa.PrivateKey

	verifiers map[string]cachedVerifier
}

type cachedVerifier struct {
	key       *rsa.PublicKey
	expiresAt time.Time
}

func newKeyring() *keyring {
	return &keyring{verifiers: map[string]cachedVerifier{}}
}

// Signer returns the cached active signing key, or false when the keyring has
// not been initialized yet.
func (r *keyring) Signer() (string, *rsa.PrivateKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.signerKey == nil {
		return "", nil, false
	}
	return r.signerKid, r.signerKey, true
}

// SetSigner replaces the active signer and registers its public half for
// verification until expiresAt.
func (r *keyring) SetSigner(kid string, key *rsa.PrivateKey, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signerKid = kid
	r.signerKey = key
	r.verifiers[kid] = cachedVerifier{key: &key.PublicKey, expiresAt: expiresAt}
}

// Verifier returns the cached public key for kid if its verification window
// is still open at the given instant.
func (r *keyring) Verifier(kid string, now time.Time) (*rsa.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[kid]
	if !ok || !now.Before(v.expiresAt) {
		return nil, false
	}
	return v.key, true
}

// AddVerifier caches a public key for verification until expiresAt. Used for
// retired keys inside their grace window and for keys loaded from the store.
func (r *keyring) AddVerifier(kid string, key *rsa.PublicKey, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[kid] = cachedVerifier{key: key, expiresAt: expiresAt}
}

// Prune drops cached verifiers whose window has closed.
func (r *keyring) Prune(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kid, v := range r.verifiers {
		if !now.Before(v.expiresAt) && kid != r.signerKid {
			delete(r.verifiers, kid)
		}
	}
}
