package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleReport = `{
  "@programName": "ZAP",
  "site": [{
    "@name": "https://example.com",
    "alerts": [{
      "name": "Cookie Without Secure Flag",
      "riskdesc": "Low (Medium)",
      "desc": "<p>A cookie has been set without the secure flag.</p>",
      "instances": [{"uri": "https://example.com/", "method": "GET", "param": "sid"}]
    }]
  }]
}`

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	t.Parallel()
	cmd := NewRootCmd()
	for _, name := range []string{"serve", "format", "version"} {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("expected subcommand %q", name)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Error("expected persistent config flag")
	}
}

func TestFormatCmd_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte(sampleReport), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "", "format", path)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	for _, want := range []string{"program name", "Cookie Without Secure Flag", "instance 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatCmd_StdinJSON(t *testing.T) {
	t.Parallel()
	out, err := runCmd(t, sampleReport, "format", "--json")
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var doc struct {
		Blocks []struct {
			Kind string `json:"kind"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(doc.Blocks) == 0 || doc.Blocks[0].Kind != "table" {
		t.Errorf("expected config table first, got %+v", doc.Blocks)
	}
}

func TestFormatCmd_InvalidJSON(t *testing.T) {
	t.Parallel()
	if _, err := runCmd(t, `{"site":`, "format"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "zapdash version ") {
		t.Errorf("unexpected output %q", out)
	}
}
