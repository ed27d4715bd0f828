package main

import (
	"bytes"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const config = `
atoms:
  - {symbol: H, coords: [0, 0, 0]}
  - {symbol: H, coords: [0, 0, 0.74]}
ncas: 2
nelecas: [1, 1]
`

func TestCommand(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "casscf.yaml")
	if err := os.WriteFile(cfgPath, []byte(config), 0644); err != nil {
		t.Fatalf("%+v", err)
	}
	tests := []struct {
		args     []string
		contains []string
	}{
		{args: []string{"--config", cfgPath}, contains: []string{"E(RHF) = -1.11", "E(CASSCF) = -1.13", "converged = true"}},
		{args: []string{"-c", cfgPath, "--chk", filepath.Join(dir, "chk.db")}, contains: []string{"run = "}},
		{args: []string{"-c", cfgPath, "--dump-config"}, contains: []string{"basis: sto-3g", "max_stepsize: 0.03"}},
	}
	for _, test := range tests {
		var buf bytes.Buffer
		cmd := newCommand(&buf)
		cmd.SetArgs(test.args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("%+v", err)
		}
		for _, s := range test.contains {
			if !strings.Contains(buf.String(), s) {
				t.Fatalf("%v: %q not in %s", test.args, s, buf.String())
			}
		}
	}

	cmd := newCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"-c", filepath.Join(dir, "missing.yaml")})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
