package dispatch

import (
	"context"
	"log"

	"github.com/quietwire/mercury/internal/models"
)

// handleGroupControl applies a closed-group state mutation. Control
// messages referring to unknown groups (other than creation) are
// dropped; membership rules are enforced against the locally known
// member list, not the sender's claims.
func (d *Dispatcher) handleGroupControl(ctx context.Context, control *models.GroupControlMessage, timestamp int64, source, sender string) error {
	address := models.GroupAddress(control.GroupID)

	group, err := d.store.Group(ctx, address)
	if err != nil {
		return storageFailed(err, sender, 0)
	}

	switch control.Kind {
	case models.GroupControlNew:
		return d.handleNewGroup(ctx, address, group, control, sender)

	case models.GroupControlNameChange:
		if group == nil || !isMember(group, sender) {
			log.Printf("dispatch: ignoring name change for %s from non-member %s", address, sender)
			return nil
		}
		group.Title = control.Name
		if err := d.store.UpdateGroup(ctx, group); err != nil {
			return storageFailed(err, sender, 0)
		}

	case models.GroupControlMembersAdded:
		if group == nil || !isMember(group, sender) {
			log.Printf("dispatch: ignoring member addition for %s from non-member %s", address, sender)
			return nil
		}
		group.Members = union(group.Members, control.Members)
		if err := d.store.UpdateGroup(ctx, group); err != nil {
			return storageFailed(err, sender, 0)
		}

	case models.GroupControlMembersRemoved:
		if group == nil || !isAdmin(group, sender) {
			log.Printf("dispatch: ignoring member removal for %s from non-admin %s", address, sender)
			return nil
		}
		group.Members = subtract(group.Members, control.Members)
		if !isMember(group, d.account.LocalKey()) {
			group.Active = false
		}
		if err := d.store.UpdateGroup(ctx, group); err != nil {
			return storageFailed(err, sender, 0)
		}

	case models.GroupControlMemberLeft:
		if group == nil || !isMember(group, sender) {
			return nil
		}
		group.Members = subtract(group.Members, []string{sender})
		if sender == d.account.LocalKey() {
			group.Active = false
		}
		if err := d.store.UpdateGroup(ctx, group); err != nil {
			return storageFailed(err, sender, 0)
		}

	default:
		log.Printf("dispatch: unknown group control kind %d from %s", control.Kind, sender)
	}

	return nil
}

func (d *Dispatcher) handleNewGroup(ctx context.Context, address models.Address, existing *models.Group, control *models.GroupControlMessage, sender string) error {
	if existing == nil {
		err := d.store.CreateGroup(ctx, &models.Group{
			EncodedID: address,
			Title:     control.Name,
			Members:   control.Members,
			Admins:    control.Admins,
			Active:    true,
		})
		if err != nil {
			return storageFailed(err, sender, 0)
		}
		return nil
	}

	// Re-delivered creation (re-invite after removal, or a replay):
	// refresh the state and reactivate.
	existing.Title = control.Name
	existing.Members = control.Members
	existing.Admins = control.Admins
	existing.Active = isMember(existing, d.account.LocalKey())
	if err := d.store.UpdateGroup(ctx, existing); err != nil {
		return storageFailed(err, sender, 0)
	}
	return nil
}

// isUnknownGroup reports whether no local state exists for the group.
func (d *Dispatcher) isUnknownGroup(ctx context.Context, address models.Address) (bool, error) {
	group, err := d.store.Group(ctx, address)
	if err != nil {
		return false, err
	}
	return group == nil, nil
}

// handleUnknownGroupMessage asks the sender for the group's current
// state so future messages can be filed properly.
func (d *Dispatcher) handleUnknownGroupMessage(ctx context.Context, content *models.Content, group *models.GroupContext) {
	log.Printf("dispatch: message for unknown group from %s, requesting info", content.Sender)
	d.submitJob(ctx, NewGroupInfoRequestJob(d.sender, content.Sender, group.ID))
}

func isMember(group *models.Group, key string) bool {
	for _, member := range group.Members {
		if member == key {
			return true
		}
	}
	return false
}

func isAdmin(group *models.Group, key string) bool {
	for _, admin := range group.Admins {
		if admin == key {
			return true
		}
	}
	return false
}

func union(base, add []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base)+len(add))
	for _, member := range base {
		seen[member] = struct{}{}
		out = append(out, member)
	}
	for _, member := range add {
		if _, ok := seen[member]; !ok {
			seen[member] = struct{}{}
			out = append(out, member)
		}
	}
	return out
}

func subtract(base, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, member := range remove {
		drop[member] = struct{}{}
	}
	out := base[:0]
	for _, member := range base {
		if _, ok := drop[member]; !ok {
			out = append(out, member)
		}
	}
	return out
}
