package permission

import "github.com/vovakirdan/legacy-gateway/internal/store"

// ResolveGuild reports whether userID holds capability at guild level.
func ResolveGuild(guild *store.Guild, userID string, capability Permission) bool {
	mask := ComputeGuild(guild, userID)
	if mask.Has(Administrator) {
		return true
	}
	return mask.Has(capability)
}

// ComputeGuild returns the guild-level mask for userID: All for the owner,
// None for non-members, otherwise the union of @everyone and every held role.
func ComputeGuild(guild *store.Guild, userID string) Permission {
	if guild == nil {
		return None
	}
	if guild.OwnerID == userID {
		return All
	}
	member := guild.Member(userID)
	if member == nil {
		return None
	}
	return baseMask(guild, member)
}

// ResolveChannel reports whether userID holds capability in channel.
// Private channels admit exactly their current recipients.
func ResolveChannel(channel *store.Channel, guild *store.Guild, userID string, capability Permission) bool {
	if channel == nil {
		return false
	}
	if channel.IsPrivate() {
		return channel.HasRecipient(userID)
	}
	if guild == nil || guild.ID != channel.GuildID {
		return false
	}
	if guild.OwnerID == userID {
		return true
	}

	member := guild.Member(userID)
	if member == nil {
		return false
	}

	base := baseMask(guild, member)
	if base.Has(Administrator) {
		return true
	}

	mask := applyOverwrites(base, channel, guild, member)
	if mask.Has(Administrator) {
		return true
	}
	return mask.Has(capability)
}

// ComputeChannel returns the effective mask for userID in a guild channel.
// Administrators and the owner get All.
func ComputeChannel(channel *store.Channel, guild *store.Guild, userID string) Permission {
	if channel == nil || guild == nil || channel.IsPrivate() || guild.ID != channel.GuildID {
		return None
	}
	if guild.OwnerID == userID {
		return All
	}
	member := guild.Member(userID)
	if member == nil {
		return None
	}

	base := baseMask(guild, member)
	if base.Has(Administrator) {
		return All
	}
	mask := applyOverwrites(base, channel, guild, member)
	if mask.Has(Administrator) {
		return All
	}
	return mask
}

// VisibleChannels returns the guild channels userID can read, in guild order.
func VisibleChannels(guild *store.Guild, userID string) []*store.Channel {
	visible := make([]*store.Channel, 0, len(guild.Channels))
	for _, c := range guild.Channels {
		if ResolveChannel(c, guild, userID, ReadMessages) {
			visible = append(visible, c)
		}
	}
	return visible
}

// baseMask ORs @everyone with every role the member holds. Unknown role ids
// (deleted roles still referenced) contribute nothing.
func baseMask(guild *store.Guild, member *store.Member) Permission {
	var mask Permission
	if everyone := guild.EveryoneRole(); everyone != nil {
		mask = FromMask(everyone.Permissions)
	}
	for _, roleID := range member.Roles {
		if role := guild.Role(roleID); role != nil {
			mask |= FromMask(role.Permissions)
		}
	}
	return mask
}

// applyOverwrites layers channel overwrites onto base: @everyone first, then
// the union of the member's role overwrites, then the member's own overwrite.
// Each layer clears its deny bits before setting its allow bits.
func applyOverwrites(base Permission, channel *store.Channel, guild *store.Guild, member *store.Member) Permission {
	if len(channel.Overwrites) == 0 {
		return base
	}

	var (
		everyone            *store.Overwrite
		memberOW            *store.Overwrite
		roleDeny, roleAllow Permission
	)
	for i := range channel.Overwrites {
		ow := &channel.Overwrites[i]
		switch {
		case ow.Type == store.OverwriteRole && ow.ID == guild.ID:
			everyone = ow
		case ow.Type == store.OverwriteRole && member.HasRole(ow.ID):
			roleDeny |= FromMask(ow.Deny)
			roleAllow |= FromMask(ow.Allow)
		case ow.Type == store.OverwriteMember && ow.ID == member.UserID:
			memberOW = ow
		}
	}

	mask := base
	if everyone != nil {
		mask &^= FromMask(everyone.Deny)
		mask |= FromMask(everyone.Allow)
	}
	mask &^= roleDeny
	mask |= roleAllow
	if memberOW != nil {
		mask &^= FromMask(memberOW.Deny)
		mask |= FromMask(memberOW.Allow)
	}
	return mask
}
