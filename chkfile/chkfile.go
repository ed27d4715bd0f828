// Package chkfile persists CASSCF snapshots in a sqlite database.
package chkfile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	tableRecord = "record"
	tableShape  = "shape"
	tableArray  = "array"

	arrayMoCoeff  = "mo_coeff"
	arrayMoOcc    = "mo_occ"
	arrayMoEnergy = "mo_energy"
	arrayCI       = "ci"
	arrayCasDM1   = "casdm1"
)

// Record is one snapshot of a CASSCF optimization.
// MoEnergy, CI and CasDM1 are optional and nil when absent.
type Record struct {
	RunID string
	Seq   int
	ETot  float64
	ECAS  float64
	NCore int
	NCAS  int

	MoCoeff  *mat.Dense
	MoOcc    []float64
	MoEnergy []float64
	CI       []float64
	CasDM1   *mat.Dense
}

// Store appends records of one run to a sqlite file.
// Records of earlier runs in the same file are kept.
type Store struct {
	Path  string
	RunID string

	db  *sql.DB
	seq int
}

func Open(dbPath string) (*Store, error) {
	db, err := newDB(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	s := &Store{Path: dbPath, RunID: uuid.New().String(), db: db}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes rec under the run of s, ignoring rec.RunID and rec.Seq.
func (s *Store) Save(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := s.save(ctx, tx, rec); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	s.seq++
	return nil
}

func (s *Store) save(ctx context.Context, tx *sql.Tx, rec Record) error {
	sqlStr := fmt.Sprintf(`INSERT INTO %s (run, seq, e_tot, e_cas, ncore, ncas, created) VALUES (?, ?, ?, ?, ?, ?, ?)`, tableRecord)
	args := []any{s.RunID, s.seq, rec.ETot, rec.ECAS, rec.NCore, rec.NCAS, time.Now().UnixMicro()}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}

	arrays := []struct {
		name string
		m    mat.Matrix
	}{
		{arrayMoCoeff, denseOrNil(rec.MoCoeff)},
		{arrayMoOcc, vector(rec.MoOcc)},
		{arrayMoEnergy, vector(rec.MoEnergy)},
		{arrayCI, vector(rec.CI)},
		{arrayCasDM1, denseOrNil(rec.CasDM1)},
	}
	for _, a := range arrays {
		if a.m == nil {
			continue
		}
		if err := s.setArray(ctx, tx, a.name, a.m); err != nil {
			return errors.Wrap(err, a.name)
		}
	}
	return nil
}

func (s *Store) setArray(ctx context.Context, tx *sql.Tx, name string, m mat.Matrix) error {
	rows, cols := m.Dims()
	sqlStr := fmt.Sprintf(`INSERT INTO %s (run, seq, name, rows, cols) VALUES (?, ?, ?, ?, ?)`, tableShape)
	if _, err := tx.ExecContext(ctx, sqlStr, s.RunID, s.seq, name, rows, cols); err != nil {
		return errors.Wrap(err, "")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (run, seq, name, i, j, v) VALUES (?, ?, ?, ?, ?, ?)`, tableArray))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer stmt.Close()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if v == 0 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, s.RunID, s.seq, name, i, j, v); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %d %d", name, i, j))
			}
		}
	}
	return nil
}

// Load returns the latest record of the run of s.
func (s *Store) Load() (Record, error) {
	rec, err := load(s.db, s.RunID)
	if err != nil {
		return Record{}, errors.Wrap(err, "")
	}
	return rec, nil
}

// Load returns the latest record in the file at dbPath.
func Load(dbPath string) (Record, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return Record{}, errors.Wrap(err, "")
	}
	defer db.Close()
	rec, err := load(db, "")
	if err != nil {
		return Record{}, errors.Wrap(err, "")
	}
	return rec, nil
}

func load(db *sql.DB, runID string) (Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var rec Record
	sqlStr := fmt.Sprintf(`SELECT run, seq, e_tot, e_cas, ncore, ncas FROM %s WHERE ?='' OR run=? ORDER BY created DESC, seq DESC LIMIT 1`, tableRecord)
	err := db.QueryRowContext(ctx, sqlStr, runID, runID).Scan(&rec.RunID, &rec.Seq, &rec.ETot, &rec.ECAS, &rec.NCore, &rec.NCAS)
	switch {
	case err == sql.ErrNoRows:
		return Record{}, errors.Errorf("no record for run %q", runID)
	case err != nil:
		return Record{}, errors.Wrap(err, "")
	}

	arrays, err := loadArrays(ctx, db, rec.RunID, rec.Seq)
	if err != nil {
		return Record{}, errors.Wrap(err, "")
	}
	if m, ok := arrays[arrayMoCoeff]; ok {
		rec.MoCoeff = m
	}
	if m, ok := arrays[arrayCasDM1]; ok {
		rec.CasDM1 = m
	}
	if m, ok := arrays[arrayMoOcc]; ok {
		rec.MoOcc = m.RawRowView(0)
	}
	if m, ok := arrays[arrayMoEnergy]; ok {
		rec.MoEnergy = m.RawRowView(0)
	}
	if m, ok := arrays[arrayCI]; ok {
		rec.CI = m.RawRowView(0)
	}
	return rec, nil
}

func loadArrays(ctx context.Context, db *sql.DB, runID string, seq int) (map[string]*mat.Dense, error) {
	arrays := make(map[string]*mat.Dense)
	sqlStr := fmt.Sprintf(`SELECT name, rows, cols FROM %s WHERE run=? AND seq=?`, tableShape)
	rows, err := db.QueryContext(ctx, sqlStr, runID, seq)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var r, c int
		if err := rows.Scan(&name, &r, &c); err != nil {
			return nil, errors.Wrap(err, "")
		}
		arrays[name] = mat.NewDense(r, c, nil)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`SELECT name, i, j, v FROM %s WHERE run=? AND seq=?`, tableArray)
	vals, err := db.QueryContext(ctx, sqlStr, runID, seq)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer vals.Close()
	for vals.Next() {
		var name string
		var i, j int
		var v float64
		if err := vals.Scan(&name, &i, &j, &v); err != nil {
			return nil, errors.Wrap(err, "")
		}
		m, ok := arrays[name]
		if !ok {
			return nil, errors.Errorf("no shape for %s", name)
		}
		m.Set(i, j, v)
	}
	if err := vals.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return arrays, nil
}

func denseOrNil(m *mat.Dense) mat.Matrix {
	if m == nil {
		return nil
	}
	return m
}

func vector(v []float64) mat.Matrix {
	if len(v) == 0 {
		return nil
	}
	return mat.NewDense(1, len(v), append([]float64(nil), v...))
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, seq INTEGER, e_tot REAL, e_cas REAL, ncore INTEGER, ncas INTEGER, created INTEGER, PRIMARY KEY (run, seq)) STRICT`, tableRecord),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, seq INTEGER, name TEXT, rows INTEGER, cols INTEGER, PRIMARY KEY (run, seq, name)) STRICT`, tableShape),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run TEXT, seq INTEGER, name TEXT, i INTEGER, j INTEGER, v REAL, PRIMARY KEY (run, seq, name, i, j)) STRICT`, tableArray),
	}
	for _, sqlStr := range stmts {
		if _, err := db.ExecContext(ctx, sqlStr); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}
