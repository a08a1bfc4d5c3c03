package db

import (
	"context"
	"fmt"
)

// Account is the local account's identity state: the key material comes
// from configuration, the synced profile lives in the single account
// row.
type Account struct {
	store    *Store
	localKey string
}

// NewAccount creates an Account. localKey may be empty while the
// account has not finished provisioning; envelopes received in that
// window are stored for replay.
func NewAccount(store *Store, localKey string) *Account {
	return &Account{store: store, localKey: localKey}
}

// LocalKey returns the local account's own serialized public key.
func (a *Account) LocalKey() string { return a.localKey }

// HasIdentityKey reports whether local key material is present.
func (a *Account) HasIdentityKey() bool { return a.localKey != "" }

// UpdateProfile applies display name and profile key synced from a
// linked device.
func (a *Account) UpdateProfile(displayName string, profileKey []byte) error {
	_, err := a.store.pool.Exec(context.Background(), `
		UPDATE account SET
			display_name = $1,
			profile_key = COALESCE($2, profile_key)
		WHERE id = 1
	`, displayName, profileKey)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// Profile returns the synced display name and profile key.
func (a *Account) Profile(ctx context.Context) (string, []byte, error) {
	var displayName string
	var profileKey []byte

	err := a.store.pool.QueryRow(ctx, `
		SELECT display_name, profile_key FROM account WHERE id = 1
	`).Scan(&displayName, &profileKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return displayName, profileKey, nil
}
