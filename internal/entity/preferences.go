package entity

import "strings"

// ServerOnlyPrefix marks preference entries that never leave the server.
// System preferences (no owner) are redacted for non-admin requesters.
const ServerOnlyPrefix = "server:"

// Preferences is a per-user (OwnerID set) or system-wide (OwnerID empty)
// key to typed-entry map.
type Preferences struct {
	Meta
	Entries map[string]Value
}

// Ref returns the stable identity of the preferences entity.
func (p *Preferences) Ref() ReferenceInfo {
	return ReferenceInfo{ID: p.ID, Kind: KindPreferences}
}

// References lists the owner plus category refs held in entries.
func (p *Preferences) References() []ReferenceInfo {
	var refs []ReferenceInfo
	if p.OwnerID != "" {
		refs = append(refs, ReferenceInfo{ID: p.OwnerID, Kind: KindUser})
	}
	for _, value := range p.Entries {
		refs = append(refs, value.References()...)
	}
	return refs
}

// Clone returns a deep copy safe to mutate.
func (p *Preferences) Clone() Entity {
	clone := *p
	if p.Entries != nil {
		clone.Entries = make(map[string]Value, len(p.Entries))
		for key, value := range p.Entries {
			clone.Entries[key] = value
		}
	}
	return &clone
}

// WithoutServerOnly returns a clone with server-only entries removed.
func (p *Preferences) WithoutServerOnly() *Preferences {
	clone := p.Clone().(*Preferences)
	for key := range clone.Entries {
		if strings.HasPrefix(key, ServerOnlyPrefix) {
			delete(clone.Entries, key)
		}
	}
	return clone
}

// RewriteAllocatableReferences repoints string entries that hold one of the
// old allocatable ids to the canonical id. Calendar views store selected
// resources this way. Used by the merge engine.
func (p *Preferences) RewriteAllocatableReferences(old map[string]struct{}, canonical string) bool {
	changed := false
	for key, value := range p.Entries {
		if value.Type != AttributeString {
			continue
		}
		if _, ok := old[value.String]; ok {
			value.String = canonical
			p.Entries[key] = value
			changed = true
		}
	}
	return changed
}

// PreferencePatch is a sparse diff against one preferences entity: entries to
// set and keys to remove, applied atomically. UserID empty targets the system
// preferences.
type PreferencePatch struct {
	UserID  string
	Entries map[string]Value
	Removed []string
}

// Clone returns a deep copy of the patch.
func (p PreferencePatch) Clone() PreferencePatch {
	out := PreferencePatch{UserID: p.UserID, Removed: cloneStrings(p.Removed)}
	if p.Entries != nil {
		out.Entries = make(map[string]Value, len(p.Entries))
		for key, value := range p.Entries {
			out.Entries[key] = value
		}
	}
	return out
}

// Apply merges the patch into the preferences entity in place.
func (p PreferencePatch) Apply(target *Preferences) {
	for _, key := range p.Removed {
		delete(target.Entries, key)
	}
	if len(p.Entries) == 0 {
		return
	}
	if target.Entries == nil {
		target.Entries = make(map[string]Value, len(p.Entries))
	}
	for key, value := range p.Entries {
		target.Entries[key] = value
	}
}
