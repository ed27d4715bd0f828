package chkfile

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		rec Record
	}{
		{
			rec: Record{
				ETot:    -1.137,
				ECAS:    -1.85,
				NCore:   0,
				NCAS:    2,
				MoCoeff: mat.NewDense(2, 2, []float64{0.548, 1.212, 0.548, -1.212}),
				MoOcc:   []float64{1.98, 0.02},
				CasDM1:  mat.NewDense(2, 2, []float64{1.98, 0, 0, 0.02}),
			},
		},
		{
			rec: Record{
				ETot:     -2.5,
				ECAS:     -0.7,
				NCore:    1,
				NCAS:     1,
				MoCoeff:  mat.NewDense(3, 3, []float64{1, 0, 0, 0, 0.6, -0.8, 0, 0.8, 0.6}),
				MoOcc:    []float64{2, 2, 0},
				MoEnergy: []float64{-0.9, -0.3, 0.4},
				CI:       []float64{1},
				CasDM1:   mat.NewDense(1, 1, []float64{2}),
			},
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			dir, err := os.MkdirTemp("", "")
			if err != nil {
				t.Fatalf("%+v", err)
			}
			defer os.RemoveAll(dir)
			fpath := filepath.Join(dir, "chk.db")

			s, err := Open(fpath)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			defer s.Close()
			stale := test.rec
			stale.ETot = 0
			if err := s.Save(stale); err != nil {
				t.Fatalf("%+v", err)
			}
			if err := s.Save(test.rec); err != nil {
				t.Fatalf("%+v", err)
			}

			loaded, err := s.Load()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			checkRecord(t, loaded, test.rec)
			if loaded.RunID != s.RunID || loaded.Seq != 1 {
				t.Fatalf("%s %d, expected %s 1", loaded.RunID, loaded.Seq, s.RunID)
			}

			fromFile, err := Load(fpath)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			checkRecord(t, fromFile, test.rec)
		})
	}
}

func TestLatestRun(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	fpath := filepath.Join(dir, "chk.db")

	for _, e := range []float64{-1, -2} {
		s := openMust(fpath)
		rec := Record{ETot: e, NCAS: 1, MoCoeff: mat.NewDense(1, 1, []float64{1}), MoOcc: []float64{2}}
		if err := s.Save(rec); err != nil {
			t.Fatalf("%+v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("%+v", err)
		}
		time.Sleep(time.Millisecond)
	}
	rec, err := Load(fpath)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if rec.ETot != -2 {
		t.Fatalf("%f", rec.ETot)
	}
	if rec.CI != nil || rec.CasDM1 != nil || rec.MoEnergy != nil {
		t.Fatalf("%#v", rec)
	}
}

func TestLoadEmpty(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	s := openMust(filepath.Join(dir, "chk.db"))
	defer s.Close()
	if _, err := s.Load(); err == nil {
		t.Fatalf("expected error")
	}
}

func checkRecord(t *testing.T, got, want Record) {
	if got.ETot != want.ETot || got.ECAS != want.ECAS || got.NCore != want.NCore || got.NCAS != want.NCAS {
		t.Fatalf("%#v, expected %#v", got, want)
	}
	if !mat.Equal(got.MoCoeff, want.MoCoeff) {
		t.Fatalf("%v, expected %v", mat.Formatted(got.MoCoeff), mat.Formatted(want.MoCoeff))
	}
	if !mat.Equal(got.CasDM1, want.CasDM1) {
		t.Fatalf("%v, expected %v", mat.Formatted(got.CasDM1), mat.Formatted(want.CasDM1))
	}
	for _, p := range [][2][]float64{{got.MoOcc, want.MoOcc}, {got.MoEnergy, want.MoEnergy}, {got.CI, want.CI}} {
		if len(p[0]) != len(p[1]) {
			t.Fatalf("%v, expected %v", p[0], p[1])
		}
		for i := range p[0] {
			if p[0][i] != p[1][i] {
				t.Fatalf("%v, expected %v", p[0], p[1])
			}
		}
	}
}

func openMust(dbPath string) *Store {
	s, err := Open(dbPath)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return s
}

func TestMain(m *testing.M) {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	m.Run()
}
