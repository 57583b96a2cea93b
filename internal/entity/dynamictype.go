package entity

import (
	"fmt"
	"time"
)

// AttributeType enumerates the value kinds a dynamic attribute can hold.
type AttributeType string

const (
	// AttributeString holds free text.
	AttributeString AttributeType = "string"
	// AttributeNumber holds a numeric value.
	AttributeNumber AttributeType = "number"
	// AttributeDate holds an instant.
	AttributeDate AttributeType = "date"
	// AttributeBoolean holds a flag.
	AttributeBoolean AttributeType = "boolean"
	// AttributeCategory holds a reference into the category tree.
	AttributeCategory AttributeType = "category"
)

// Attribute describes one typed slot of a dynamic type's schema.
type Attribute struct {
	Key  string
	Type AttributeType
	// RootCategoryID constrains category attributes to descendants of the
	// referenced category. Empty for other attribute types.
	RootCategoryID string
}

// AnonymousTypeKey names the built-in classification type substituted for
// reservations the requesting user may not read.
const AnonymousTypeKey = "anonymous"

// DynamicType is a versioned schema: an ordered list of attributes that
// classification values are validated against at read time.
type DynamicType struct {
	Meta
	Key        string
	Attributes []Attribute
	// Internal types never leave the server; requesting one over the wire is
	// a security failure.
	Internal bool
}

// Ref returns the stable identity of the type.
func (t *DynamicType) Ref() ReferenceInfo {
	return ReferenceInfo{ID: t.ID, Kind: KindDynamicType}
}

// References lists the category constraints of the type's attributes.
func (t *DynamicType) References() []ReferenceInfo {
	var refs []ReferenceInfo
	for _, attr := range t.Attributes {
		if attr.RootCategoryID != "" {
			refs = append(refs, ReferenceInfo{ID: attr.RootCategoryID, Kind: KindCategory})
		}
	}
	return refs
}

// Clone returns a deep copy safe to mutate.
func (t *DynamicType) Clone() Entity {
	clone := *t
	clone.Attributes = make([]Attribute, len(t.Attributes))
	copy(clone.Attributes, t.Attributes)
	return &clone
}

// Attribute looks up a schema slot by key.
func (t *DynamicType) Attribute(key string) (Attribute, bool) {
	for _, attr := range t.Attributes {
		if attr.Key == key {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Value is the tagged classification value for a single attribute. Exactly one
// field matching the declared type is meaningful.
type Value struct {
	Type       AttributeType
	String     string
	Number     float64
	Bool       bool
	Date       time.Time
	CategoryID string
}

// References lists the category referenced by a category value.
func (v Value) References() []ReferenceInfo {
	if v.Type == AttributeCategory && v.CategoryID != "" {
		return []ReferenceInfo{{ID: v.CategoryID, Kind: KindCategory}}
	}
	return nil
}

// Classification binds typed attribute values to a dynamic type.
type Classification struct {
	TypeID string
	Values map[string]Value
}

// Clone returns a deep copy of the classification.
func (c Classification) Clone() Classification {
	out := Classification{TypeID: c.TypeID}
	if c.Values != nil {
		out.Values = make(map[string]Value, len(c.Values))
		for key, value := range c.Values {
			out.Values[key] = value
		}
	}
	return out
}

// References lists the type and every category value of the classification.
func (c Classification) References() []ReferenceInfo {
	var refs []ReferenceInfo
	if c.TypeID != "" {
		refs = append(refs, ReferenceInfo{ID: c.TypeID, Kind: KindDynamicType})
	}
	for _, value := range c.Values {
		refs = append(refs, value.References()...)
	}
	return refs
}

// Normalize drops values whose key or declared type no longer appears in the
// schema. Removing an attribute from a type therefore cascade-invalidates
// stored values at the next read.
func (c Classification) Normalize(t *DynamicType) Classification {
	out := Classification{TypeID: c.TypeID}
	if t == nil || len(c.Values) == 0 {
		return out
	}
	for key, value := range c.Values {
		attr, ok := t.Attribute(key)
		if !ok || attr.Type != value.Type {
			continue
		}
		if out.Values == nil {
			out.Values = make(map[string]Value)
		}
		out.Values[key] = value
	}
	return out
}

// Validate checks the classification against the schema snapshot.
func (c Classification) Validate(t *DynamicType) error {
	if t == nil {
		return fmt.Errorf("entity: classification without type")
	}
	if c.TypeID != t.ID {
		return fmt.Errorf("entity: classification type %s does not match schema %s", c.TypeID, t.ID)
	}
	for key, value := range c.Values {
		attr, ok := t.Attribute(key)
		if !ok {
			return fmt.Errorf("entity: classification value %q has no attribute in type %s", key, t.Key)
		}
		if attr.Type != value.Type {
			return fmt.Errorf("entity: classification value %q is %s, schema expects %s", key, value.Type, attr.Type)
		}
	}
	return nil
}
