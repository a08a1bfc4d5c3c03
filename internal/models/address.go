package models

import (
	"encoding/hex"
	"strings"
)

// groupPrefix marks addresses that identify a group conversation rather
// than a direct contact.
const groupPrefix = "group!"

// Address is a normalized conversation identity: either a contact's
// public key serialized as hex, or an encoded group identifier.
type Address string

// GroupAddress encodes a raw group identifier into an Address.
func GroupAddress(groupID []byte) Address {
	return Address(groupPrefix + hex.EncodeToString(groupID))
}

// AddressFromKey wraps a serialized sender key into an Address without
// validating it. Invalid keys are treated as opaque local addresses.
func AddressFromKey(key string) Address {
	return Address(key)
}

// IsGroup reports whether the address identifies a group conversation.
func (a Address) IsGroup() bool {
	return strings.HasPrefix(string(a), groupPrefix)
}

// IsContact reports whether the address identifies a direct contact.
func (a Address) IsContact() bool {
	return !a.IsGroup()
}

// GroupID returns the raw group identifier for a group address, or nil
// for contact addresses.
func (a Address) GroupID() []byte {
	if !a.IsGroup() {
		return nil
	}
	id, err := hex.DecodeString(strings.TrimPrefix(string(a), groupPrefix))
	if err != nil {
		return nil
	}
	return id
}

func (a Address) String() string {
	return string(a)
}
