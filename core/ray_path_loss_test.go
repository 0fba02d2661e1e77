package core

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

const testFreq = 2.4e9

func TestFSPL(t *testing.T) {
	want := 20*math.Log10(testFreq) - 147.55
	if got := FSPL(1, testFreq); !almostEqual(got, want, 1e-9) {
		t.Fatalf("FSPL(1m) = %v, want %v", got, want)
	}
	if got := FSPL(10, testFreq) - FSPL(1, testFreq); !almostEqual(got, 20, 1e-9) {
		t.Fatalf("FSPL decade step = %v, want 20", got)
	}
	if got := FSPL(0, testFreq); math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("FSPL(0) = %v, want finite", got)
	}
}

func TestDirectPathLoss(t *testing.T) {
	m := NewPhysicalLossModel()

	t.Run("clear", func(t *testing.T) {
		rec := model.RayPathRecord{Kind: model.RayDirect, Points: []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}}}
		loss, delay, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		if want := FSPL(10, testFreq); !almostEqual(loss, want, 1e-9) {
			t.Fatalf("loss = %v, want %v", loss, want)
		}
		if want := 10 / LightSpeed * airRefractiveIndex * 1e9; !almostEqual(delay, want, 1e-9) {
			t.Fatalf("delay = %v, want %v", delay, want)
		}
	})

	t.Run("penetrating one obstacle", func(t *testing.T) {
		rec := model.RayPathRecord{Kind: model.RayDirect, Points: []mgl64.Vec3{{0, 0, 0}, {4, 0, 0}, {5, 0, 0}, {10, 0, 0}}}
		loss, delay, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		if want := FSPL(4+obstacleAttenuation+5, testFreq); !almostEqual(loss, want, 1e-9) {
			t.Fatalf("loss = %v, want %v", loss, want)
		}
		wantDelay := PropagationDelayNS(9, airRefractiveIndex) + PropagationDelayNS(1, obstacleRefractiveIndex)
		if !almostEqual(delay, wantDelay, 1e-9) {
			t.Fatalf("delay = %v, want %v", delay, wantDelay)
		}
	})
}

func TestReflectedPathLoss(t *testing.T) {
	m := NewPhysicalLossModel()
	points := []mgl64.Vec3{{-1, 0, 1}, {0, 0, 0}, {1, 0, 1}}

	t.Run("adds reflection loss", func(t *testing.T) {
		rec := model.RayPathRecord{Kind: model.RayReflected, Points: points, RefIndex: 1}
		loss, _, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		free := FSPL(2*math.Sqrt2, testFreq)
		if !(loss > free) || math.IsInf(loss, 0) {
			t.Fatalf("loss = %v, want finite and above free-space %v", loss, free)
		}
	})

	t.Run("total reflection", func(t *testing.T) {
		rec := model.RayPathRecord{Kind: model.RayReflected, Points: points, RefIndex: 1}
		loss, _, err := m.ComputeLoss(rec, testFreq, 0.25)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		if want := FSPL(2*math.Sqrt2, testFreq); !almostEqual(loss, want, 1e-9) {
			t.Fatalf("loss = %v, want %v", loss, want)
		}
	})

	t.Run("reflection keeps both legs in air", func(t *testing.T) {
		rec := model.RayPathRecord{Kind: model.RayReflected, Points: points, RefIndex: 1}
		_, delay, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		if want := PropagationDelayNS(2*math.Sqrt2, airRefractiveIndex); !almostEqual(delay, want, 1e-9) {
			t.Fatalf("delay = %v, want %v", delay, want)
		}
	})

	t.Run("delay parity shifts past the reflection", func(t *testing.T) {
		// air, shelf, (reflect), shelf, air: the reflection point skips
		// one alternation so both legs inside the shelf stay in it.
		pts := []mgl64.Vec3{{0, 0, 0}, {1, 0, 1}, {2, 0, 2}, {3, 0, 1}, {4, 0, 0}}
		rec := model.RayPathRecord{Kind: model.RayReflected, Points: pts, RefIndex: 2}
		_, delay, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		want := 2*PropagationDelayNS(math.Sqrt2, airRefractiveIndex) + 2*PropagationDelayNS(math.Sqrt2, obstacleRefractiveIndex)
		if !almostEqual(delay, want, 1e-9) {
			t.Fatalf("delay = %v, want %v", delay, want)
		}
	})

	for _, idx := range []int{0, 2, -1} {
		rec := model.RayPathRecord{Kind: model.RayReflected, Points: points, RefIndex: idx}
		if _, _, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity); !errors.Is(err, ErrGeometryOracle) {
			t.Fatalf("RefIndex %d: err = %v, want ErrGeometryOracle", idx, err)
		}
	}

	rec := model.RayPathRecord{Kind: model.RayReflected, Points: points, RefIndex: 1}
	if _, _, err := m.ComputeLoss(rec, testFreq, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero permittivity: err = %v, want ErrInvalidInput", err)
	}
}

func TestDiffractedPathLoss(t *testing.T) {
	m := NewPhysicalLossModel()
	tx, rx := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10, 0, 0}

	t.Run("grazing edge", func(t *testing.T) {
		rec := model.RayPathRecord{Kind: model.RayDiffracted, Points: []mgl64.Vec3{tx, {5, 0, 0}, rx}}
		loss, _, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		cv := 6.9 + 20*math.Log10(math.Sqrt(0.01+1)-0.1)
		if want := FSPL(10, testFreq) + cv; !almostEqual(loss, want, 1e-9) {
			t.Fatalf("loss = %v, want %v", loss, want)
		}
	})

	t.Run("edge order does not matter", func(t *testing.T) {
		a := model.RayPathRecord{Kind: model.RayDiffracted, Points: []mgl64.Vec3{tx, {3, 0, 1}, {7, 0, 2}, rx}}
		b := model.RayPathRecord{Kind: model.RayDiffracted, Points: []mgl64.Vec3{tx, {7, 0, 2}, {3, 0, 1}, rx}}
		la, da, err := m.ComputeLoss(a, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss(a): %v", err)
		}
		lb, db, err := m.ComputeLoss(b, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss(b): %v", err)
		}
		if la != lb || da != db {
			t.Fatalf("reordered edges changed result: (%v,%v) vs (%v,%v)", la, da, lb, db)
		}
	})

	t.Run("higher edge costs more", func(t *testing.T) {
		low := model.RayPathRecord{Kind: model.RayDiffracted, Points: []mgl64.Vec3{tx, {5, 0, 0.5}, rx}}
		high := model.RayPathRecord{Kind: model.RayDiffracted, Points: []mgl64.Vec3{tx, {5, 0, 3}, rx}}
		ll, _, _ := m.ComputeLoss(low, testFreq, DefaultPermittivity)
		lh, _, _ := m.ComputeLoss(high, testFreq, DefaultPermittivity)
		if !(lh > ll) {
			t.Fatalf("loss(high) = %v, want > loss(low) = %v", lh, ll)
		}
	})

	t.Run("many edges", func(t *testing.T) {
		rec := model.RayPathRecord{Kind: model.RayDiffracted, Points: []mgl64.Vec3{
			tx, {1, 0, 0.5}, {3, 0, 2}, {5, 0, 1}, {7, 0, 2.5}, {9, 0, 0.2}, rx,
		}}
		loss, delay, err := m.ComputeLoss(rec, testFreq, DefaultPermittivity)
		if err != nil {
			t.Fatalf("ComputeLoss: %v", err)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) || loss < FSPL(10, testFreq) {
			t.Fatalf("loss = %v, want finite and >= free-space", loss)
		}
		if delay <= PropagationDelayNS(10, airRefractiveIndex) {
			t.Fatalf("delay = %v, want longer than the direct path", delay)
		}
	})
}

func TestComputeLoss_Errors(t *testing.T) {
	m := NewPhysicalLossModel()
	pts := []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}}

	if _, _, err := m.ComputeLoss(model.RayPathRecord{Kind: model.RayPathKind(9), Points: pts}, testFreq, 1); !errors.Is(err, ErrUnsupportedPathKind) {
		t.Fatalf("unknown kind: err = %v, want ErrUnsupportedPathKind", err)
	}

	m.Diffracted = nil
	if _, _, err := m.ComputeLoss(model.RayPathRecord{Kind: model.RayDiffracted, Points: pts}, testFreq, 1); !errors.Is(err, ErrUnsupportedPathKind) {
		t.Fatalf("missing formula: err = %v, want ErrUnsupportedPathKind", err)
	}
	if _, _, err := m.ComputeLoss(model.RayPathRecord{Kind: model.RayDirect, Points: pts}, 0, 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero frequency: err = %v, want ErrInvalidInput", err)
	}
	if _, _, err := m.ComputeLoss(model.RayPathRecord{Kind: model.RayDirect, Points: pts[:1]}, testFreq, 1); !errors.Is(err, ErrGeometryOracle) {
		t.Fatalf("single point: err = %v, want ErrGeometryOracle", err)
	}
}

func TestComputeLoss_SwappableFormula(t *testing.T) {
	m := NewPhysicalLossModel()
	m.Direct = func(model.RayPathRecord, float64, float64) (float64, float64, error) { return 42, 7, nil }

	loss, delay, err := m.ComputeLoss(model.RayPathRecord{Kind: model.RayDirect, Points: []mgl64.Vec3{{}, {1, 1, 1}}}, testFreq, 1)
	if err != nil || loss != 42 || delay != 7 {
		t.Fatalf("ComputeLoss = %v, %v, %v; want 42, 7, nil", loss, delay, err)
	}
}

func TestEdgeLossUndefined(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := edgeLoss(v); got != 0 {
			t.Fatalf("edgeLoss(%v) = %v, want 0", v, got)
		}
	}
}

func TestTotalLossDB(t *testing.T) {
	if got, want := TotalLossDB([]float64{10, 10}), 10-10*math.Log10(2); !almostEqual(got, want, 1e-9) {
		t.Fatalf("TotalLossDB = %v, want %v", got, want)
	}
	if got := TotalLossDB([]float64{30}); !almostEqual(got, 30, 1e-9) {
		t.Fatalf("TotalLossDB(single) = %v, want 30", got)
	}
	if got := TotalLossDB(nil); !math.IsInf(got, 1) {
		t.Fatalf("TotalLossDB(nil) = %v, want +Inf", got)
	}
}
