package main

import (
	"testing"

	"portraitd/pkg/types"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestParseOwnership(t *testing.T) {
	got, err := parseOwnership([]string{"alice", "default=2"})
	if err != nil {
		t.Fatal(err)
	}
	if got["alice"] != 3 || got["default"] != 2 {
		t.Fatalf("ownership=%v", got)
	}
	for _, bad := range []string{"=3", "bob=9", "bob=x"} {
		if _, err := parseOwnership([]string{bad}); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestOverlay_FlagsWinOverPreset(t *testing.T) {
	preset := types.FormFields{Model: "civitai:1@2", LoraModel: "lora:1", LoraWeight: "0.5", PresetID: "p"}
	got := overlay(preset, types.FormFields{Prompt: "elf", LoraWeight: "0.9"})
	if got.Model != "civitai:1@2" || got.LoraModel != "lora:1" || got.LoraWeight != "0.9" || got.Prompt != "elf" || got.PresetID != "p" {
		t.Fatalf("overlay=%+v", got)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORTRAITD_ADDR", ":9000")
	t.Setenv("PORTRAITD_GM_USERS", "gm1, gm2")
	dir := t.TempDir()
	flagData = dir
	flagAddr = ":9100"
	defer func() { flagData, flagAddr = "", "" }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9100" || cfg.DataDir != dir || !cfg.IsGM("gm2") {
		t.Fatalf("cfg=%+v", cfg)
	}
}
