package entity

// Category is a node in the hierarchical keyword tree. Categories double as
// user groups and as the value domain of category attributes.
type Category struct {
	Meta
	Key      string
	Label    string
	ParentID string
}

// Ref returns the stable identity of the category.
func (c *Category) Ref() ReferenceInfo {
	return ReferenceInfo{ID: c.ID, Kind: KindCategory}
}

// References lists the parent category, when present.
func (c *Category) References() []ReferenceInfo {
	if c.ParentID == "" {
		return nil
	}
	return []ReferenceInfo{{ID: c.ParentID, Kind: KindCategory}}
}

// Clone returns a deep copy safe to mutate.
func (c *Category) Clone() Entity {
	clone := *c
	return &clone
}
