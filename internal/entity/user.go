package entity

// User is an account that can authenticate and own entities. Group membership
// references the category tree.
type User struct {
	Meta
	Username  string
	Email     string
	Title     string
	Firstname string
	Lastname  string
	Admin     bool
	GroupIDs  []string
}

// Ref returns the stable identity of the user.
func (u *User) Ref() ReferenceInfo {
	return ReferenceInfo{ID: u.ID, Kind: KindUser}
}

// References lists the group categories the user belongs to.
func (u *User) References() []ReferenceInfo {
	var refs []ReferenceInfo
	for _, id := range u.GroupIDs {
		refs = append(refs, ReferenceInfo{ID: id, Kind: KindCategory})
	}
	return refs
}

// Clone returns a deep copy safe to mutate.
func (u *User) Clone() Entity {
	clone := *u
	clone.GroupIDs = cloneStrings(u.GroupIDs)
	return &clone
}

// InGroup reports whether the user belongs to the group category.
func (u *User) InGroup(groupID string) bool {
	for _, id := range u.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// Name renders the display name used in dependency reports and mails.
func (u *User) Name() string {
	name := u.Firstname
	if u.Lastname != "" {
		if name != "" {
			name += " "
		}
		name += u.Lastname
	}
	if name == "" {
		return u.Username
	}
	if u.Title != "" {
		return u.Title + " " + name
	}
	return name
}
