package apps

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/verbalautomation/c3a/crypto"
	"github.com/verbalautomation/c3a/kv"
)

// invitationByteLength matches the original implementation's 1024-byte
// single-use invitation codes.
const invitationByteLength = 1024

func appKey(appName string) string {
	sum := sha3.Sum256([]byte(appName))
	return "app::" + hex.EncodeToString(sum[:])
}

// Registry implements the application registry operations against the KV
// facade.
type Registry struct {
	db *kv.DB
}

// New wraps db as an application Registry.
func New(db *kv.DB) *Registry {
	return &Registry{db: db}
}

// MintInvitation generates and durably persists a fresh single-use
// invitation code, appending it to the authority's invitation set.
func (r *Registry) MintInvitation() ([]byte, error) {
	code := crypto.RandomBytes(invitationByteLength)

	var invitations [][]byte
	existing, err := kv.Get[[][]byte](r.db, kv.KeyInvitations)
	switch {
	case err == nil:
		invitations = existing
	case err == kv.ErrNotFound:
		invitations = nil
	default:
		return nil, err
	}
	invitations = append(invitations, code)
	if err := kv.Upsert(r.db, kv.KeyInvitations, invitations); err != nil {
		return nil, err
	}
	return code, nil
}

// consumeInvitation removes code from the invitation set if present. It
// returns false if the code was already consumed or never existed, so a
// caller racing another consumer of the same code loses.
func (r *Registry) consumeInvitation(code []byte) (bool, error) {
	invitations, err := kv.Get[[][]byte](r.db, kv.KeyInvitations)
	if err != nil {
		if err == kv.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	idx := -1
	for i, c := range invitations {
		if string(c) == string(code) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}
	remaining := append(invitations[:idx:idx], invitations[idx+1:]...)
	if err := kv.Upsert(r.db, kv.KeyInvitations, remaining); err != nil {
		return false, err
	}
	return true, nil
}

// ErrInvitationUnknown is returned when the invitation code does not exist
// or has already been consumed.
var ErrInvitationUnknown = fmt.Errorf("invitation unknown or already consumed")

// ErrAppAlreadyExists is returned by Register when an application with the
// same name is already registered.
var ErrAppAlreadyExists = fmt.Errorf("application already registered")

// ErrAppNotFound is returned by Get for an unknown application. Edit and
// Remove do not check that the application exists: Edit writes the
// configuration regardless, and Remove succeeds for an absent name.
var ErrAppNotFound = fmt.Errorf("application not found")

// ErrRequiredNotAllowed is returned when a configuration's
// required_authentication set names a factor type absent from
// allowed_factors, violating the required-is-a-subset-of-allowed invariant.
var ErrRequiredNotAllowed = fmt.Errorf("required authentication factor is not in allowed_factors")

// validateFactors enforces that every required factor type is also an
// allowed factor type.
func validateFactors(cfg AppAuthConfiguration) error {
	allowed := make(map[string]bool, len(cfg.AllowedFactors))
	for _, req := range cfg.AllowedFactors {
		allowed[req.Type] = true
	}
	for _, req := range cfg.RequiredFactors {
		if !allowed[req.Type] {
			return ErrRequiredNotAllowed
		}
	}
	return nil
}

// Register consumes invitationCode and persists cfg as a new application.
// The invitation is consumed first so a race between two registrations
// presenting the same code leaves exactly one winner.
func (r *Registry) Register(invitationCode []byte, cfg AppAuthConfiguration) error {
	if err := validateFactors(cfg); err != nil {
		return err
	}
	consumed, err := r.consumeInvitation(invitationCode)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrInvitationUnknown
	}
	if err := kv.Insert(r.db, appKey(cfg.AppName), cfg); err != nil {
		if err == kv.ErrAlreadyExists {
			return ErrAppAlreadyExists
		}
		return err
	}
	return nil
}

// Get fetches an application's configuration by name.
func (r *Registry) Get(appName string) (*AppAuthConfiguration, error) {
	cfg, err := kv.Get[AppAuthConfiguration](r.db, appKey(appName))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, ErrAppNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// Edit updates an application's configuration, optionally renaming it. A
// rename is performed atomically (old key removed, new key inserted) via
// BatchOps, matching the KV facade's batch ordering.
func (r *Registry) Edit(appName string, newAppName string, cfg AppAuthConfiguration) error {
	if err := validateFactors(cfg); err != nil {
		return err
	}
	oldKey := appKey(appName)
	if newAppName == "" || newAppName == appName {
		if err := kv.Upsert(r.db, oldKey, cfg); err != nil {
			return err
		}
		return nil
	}

	newKey := appKey(newAppName)
	_, err := r.db.BatchOps(
		[]string{oldKey},
		[]string{oldKey},
		[]kv.RawOp{{Key: newKey, Value: cfg}},
	)
	return err
}

// Remove deletes an application's configuration.
func (r *Registry) Remove(appName string) error {
	return r.db.Remove(appKey(appName))
}
