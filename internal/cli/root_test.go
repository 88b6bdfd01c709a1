package cli

import (
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	want := map[string]bool{
		"run":        false,
		"scan":       false,
		"quarantine": false,
		"update":     false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"config", "verbose"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing persistent flag --%s", name)
		}
	}
}

func TestQuarantineSubcommands(t *testing.T) {
	root := NewRootCmd()

	var quarantine bool
	for _, cmd := range root.Commands() {
		if cmd.Name() != "quarantine" {
			continue
		}
		quarantine = true
		subs := map[string]bool{"list": false, "restore": false, "rm": false}
		for _, sub := range cmd.Commands() {
			if _, ok := subs[sub.Name()]; ok {
				subs[sub.Name()] = true
			}
		}
		for name, found := range subs {
			if !found {
				t.Errorf("missing quarantine subcommand %q", name)
			}
		}
	}
	if !quarantine {
		t.Fatal("missing quarantine command")
	}
}

func TestScanFlags(t *testing.T) {
	root := NewRootCmd()
	for _, cmd := range root.Commands() {
		if cmd.Name() != "scan" {
			continue
		}
		for _, name := range []string{"profile", "no-quarantine"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("missing scan flag --%s", name)
			}
		}
		return
	}
	t.Fatal("missing scan command")
}
