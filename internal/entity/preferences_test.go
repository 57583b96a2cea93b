package entity

import "testing"

func TestPreferencesWithoutServerOnly(t *testing.T) {
	t.Parallel()

	prefs := &Preferences{
		Meta: Meta{ID: "pref-1"},
		Entries: map[string]Value{
			"calendar.view":            {Type: AttributeString, String: "week"},
			ServerOnlyPrefix + "smtp":  {Type: AttributeString, String: "mail.example.org"},
			ServerOnlyPrefix + "quota": {Type: AttributeNumber, Number: 10},
		},
	}

	redacted := prefs.WithoutServerOnly()
	if len(redacted.Entries) != 1 {
		t.Fatalf("expected only the client entry to survive, got %v", redacted.Entries)
	}
	if _, ok := redacted.Entries["calendar.view"]; !ok {
		t.Fatalf("client entry missing after redaction: %v", redacted.Entries)
	}
	if len(prefs.Entries) != 3 {
		t.Fatal("redaction must not touch the committed instance")
	}
}

func TestPreferencePatchApply(t *testing.T) {
	t.Parallel()

	t.Run("sets and removes atomically", func(t *testing.T) {
		t.Parallel()

		target := &Preferences{Entries: map[string]Value{
			"calendar.view": {Type: AttributeString, String: "week"},
			"stale":         {Type: AttributeBoolean, Bool: true},
		}}
		patch := PreferencePatch{
			Entries: map[string]Value{"calendar.view": {Type: AttributeString, String: "day"}},
			Removed: []string{"stale"},
		}

		patch.Apply(target)

		if target.Entries["calendar.view"].String != "day" {
			t.Fatalf("expected the patched value, got %v", target.Entries["calendar.view"])
		}
		if _, ok := target.Entries["stale"]; ok {
			t.Fatal("expected the removed key to be gone")
		}
	})

	t.Run("initializes a nil entry map", func(t *testing.T) {
		t.Parallel()

		target := &Preferences{}
		patch := PreferencePatch{Entries: map[string]Value{"k": {Type: AttributeString, String: "v"}}}

		patch.Apply(target)

		if target.Entries["k"].String != "v" {
			t.Fatalf("expected the entry to be set, got %v", target.Entries)
		}
	})
}

func TestPreferencesRewriteAllocatableReferences(t *testing.T) {
	t.Parallel()

	prefs := &Preferences{Entries: map[string]Value{
		"calendar.selected": {Type: AttributeString, String: "alloc-dup"},
		"calendar.other":    {Type: AttributeString, String: "alloc-keep"},
		"calendar.rows":     {Type: AttributeNumber, Number: 4},
	}}

	changed := prefs.RewriteAllocatableReferences(map[string]struct{}{"alloc-dup": {}}, "alloc-main")
	if !changed {
		t.Fatal("expected the rewrite to report a change")
	}
	if prefs.Entries["calendar.selected"].String != "alloc-main" {
		t.Fatalf("expected the duplicate id to be repointed, got %v", prefs.Entries["calendar.selected"])
	}
	if prefs.Entries["calendar.other"].String != "alloc-keep" {
		t.Fatal("unrelated entries must stay untouched")
	}

	if prefs.RewriteAllocatableReferences(map[string]struct{}{"alloc-gone": {}}, "alloc-main") {
		t.Fatal("expected no change when nothing matches")
	}
}
