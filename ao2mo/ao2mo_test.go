package ao2mo

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestGeneral(t *testing.T) {
	t.Parallel()
	const nao = 3
	rng := rand.New(rand.NewSource(1))
	eri := make([]float64, nao*nao*nao*nao)
	for i := range eri {
		eri[i] = rng.Float64()
	}
	coeff := func(n int) *mat.Dense {
		c := mat.NewDense(nao, n, nil)
		for i := 0; i < nao; i++ {
			for j := 0; j < n; j++ {
				c.Set(i, j, rng.NormFloat64())
			}
		}
		return c
	}
	c1, c2, c3, c4 := coeff(2), coeff(3), coeff(1), coeff(2)

	out := General(eri, c1, c2, c3, c4)
	if len(out) != 2*3*1*2 {
		t.Fatalf("%d", len(out))
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 1; k++ {
				for l := 0; l < 2; l++ {
					var v float64
					for p := 0; p < nao; p++ {
						for q := 0; q < nao; q++ {
							for r := 0; r < nao; r++ {
								for s := 0; s < nao; s++ {
									v += c1.At(p, i) * c2.At(q, j) * c3.At(r, k) * c4.At(s, l) * eri[((p*nao+q)*nao+r)*nao+s]
								}
							}
						}
					}
					got := out[((i*3+j)*1+k)*2+l]
					if math.Abs(got-v) > 1e-10 {
						t.Fatalf("%d %d %d %d %f, expected %f", i, j, k, l, got, v)
					}
				}
			}
		}
	}
}

func TestFullIdentity(t *testing.T) {
	t.Parallel()
	const nao = 2
	eri := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	id := mat.NewDense(nao, nao, []float64{1, 0, 0, 1})
	out := Full(eri, id)
	for i, v := range out {
		if v != eri[i] {
			t.Fatalf("%d %f, expected %f", i, v, eri[i])
		}
	}
}
