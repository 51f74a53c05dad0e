// Package secret implements the Secret value and SecretStore (C3): the
// fetched-value/lease/renewal model and the in-memory path->secret mapping
// with change detection.
//
// The 2/3-lease renewal math and the renewable/lease predicates are grounded
// on hcat's leaseCheckWait/vaultSecretRenewable
// (other_examples/70544ac3_hashicorp-hcat__internal-dependency-vault_common.go.go),
// simplified to a fixed "renew at 2/3 of lease_duration" rule with no
// jitter, unlike hcat's staggered random window.
package secret

import (
	"sync"
	"time"

	"github.com/eburghar/rconfd/internal/secretval"
)

// Secret is a fetched value with lease metadata.
type Secret struct {
	Value         secretval.Value
	LeaseDuration *time.Duration // nil means "no expiry"
	Renewable     bool
	fetchedAt     time.Time
}

// New constructs a Secret fetched "now".
func New(value secretval.Value, lease *time.Duration, renewable bool, now time.Time) Secret {
	return Secret{Value: value, LeaseDuration: lease, Renewable: renewable, fetchedAt: now}
}

// HasLease reports whether the secret carries a lease at all, including a
// zero-duration lease representing a single-use dynamic secret.
func (s Secret) HasLease() bool {
	return s.LeaseDuration != nil
}

// IsValid reports whether the secret is still within its lease: no lease,
// OR now-fetchedAt < lease_duration.
func (s Secret) IsValid(now time.Time) bool {
	if s.LeaseDuration == nil {
		return true
	}
	return now.Sub(s.fetchedAt) < *s.LeaseDuration
}

// ToRenew reports whether the secret should be renewed now: renewable AND
// now-fetchedAt >= 2/3 * lease_duration.
func (s Secret) ToRenew(now time.Time) bool {
	if !s.Renewable || s.LeaseDuration == nil {
		return false
	}
	threshold := twoThirds(*s.LeaseDuration)
	return now.Sub(s.fetchedAt) >= threshold
}

// RenewDelay returns the delay at which a renewal should be scheduled: 2/3
// of the lease duration if renewable, or false otherwise.
func (s Secret) RenewDelay() (time.Duration, bool) {
	if !s.Renewable || s.LeaseDuration == nil {
		return 0, false
	}
	return twoThirds(*s.LeaseDuration), true
}

func twoThirds(d time.Duration) time.Duration {
	return time.Duration(int64(d) * 2 / 3)
}

// Equal compares Secret payloads by value only.
func (s Secret) Equal(other Secret) bool {
	return s.Value.Equal(other.Value)
}

// Store is the in-memory mapping SecretPath-repr -> Optional<Secret> (C3).
type Store struct {
	mu   sync.Mutex
	data map[string]*Secret // nil entry == None placeholder
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]*Secret)}
}

// Reserve inserts a None placeholder for path if absent, so concurrent
// issuers of FetchSecret for the same path deduplicate.
func (st *Store) Reserve(path string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.data[path]; !ok {
		st.data[path] = nil
	}
}

// Get returns the current secret for path and whether one is present
// (a reserved-but-unfetched path returns ok==false).
func (st *Store) Get(path string) (Secret, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.data[path]
	if !ok || s == nil {
		return Secret{}, false
	}
	return *s, true
}

// Replace overwrites the secret at path and reports whether the new payload
// differs from the previous value: true iff the previous value was None or
// its payload != s.Value.
func (st *Store) Replace(path string, s Secret) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	prev, existed := st.data[path]
	changed := !existed || prev == nil || !prev.Equal(s)
	cp := s
	st.data[path] = &cp
	return changed
}

// AnyLeased reports whether any stored secret carries a lease, used by the
// broker to decide daemon-mode continuation at end-of-pass.
func (st *Store) AnyLeased() bool {
	return st.LeasedCount() > 0
}

// LeasedCount returns how many stored secrets carry a lease, used to drive
// the rconfd_leased_secrets gauge.
func (st *Store) LeasedCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for _, s := range st.data {
		if s != nil && s.HasLease() {
			n++
		}
	}
	return n
}
