package dispatch

import (
	"encoding/hex"
	"strings"

	"github.com/quietwire/mercury/internal/models"
)

// IsValidPublicKey reports whether key has the serialized public key
// format: 33 bytes hex encoded with the 05 version prefix.
func IsValidPublicKey(key string) bool {
	if len(key) != 66 || !strings.HasPrefix(key, "05") {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// destinationAddress resolves the conversation a data message belongs
// to: the encoded group when group context is present, the sender
// otherwise.
func destinationAddress(content *models.Content, msg *models.DataMessage) models.Address {
	if msg.Group != nil {
		return models.GroupAddress(msg.Group.ID)
	}
	return models.AddressFromKey(content.Sender)
}

// masterAddress resolves a sender key to the canonical single-device
// identity its messages should be filed under. Invalid keys are treated
// as opaque local addresses; the local user's own key resolves to the
// local account's canonical address.
func (d *Dispatcher) masterAddress(senderKey string) models.Address {
	if !IsValidPublicKey(senderKey) {
		return models.AddressFromKey(senderKey)
	}
	if senderKey == d.account.LocalKey() {
		return models.AddressFromKey(d.account.LocalKey())
	}
	return models.AddressFromKey(senderKey)
}
