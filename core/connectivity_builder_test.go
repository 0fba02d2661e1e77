package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

func emptyBuilder(t *testing.T) *ConnectivityBuilder {
	t.Helper()
	return NewConnectivityBuilder(mustGrid(t, 10, 10, 10).Freeze())
}

func TestBuild_EmptyGridScenario(t *testing.T) {
	b := emptyBuilder(t)
	nodes := []model.Node{
		{Name: "ctrl-001", Pos: mgl64.Vec3{2.5, 5.5, 5.5}},
		{Name: "ctrl-002", Pos: mgl64.Vec3{7.5, 5.5, 5.5}},
	}
	res, err := b.Build(context.Background(), nodes, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Edges) != 1 {
		t.Fatalf("len(Edges) = %d, want 1", len(res.Edges))
	}
	sig := res.Edges[0].Signal
	if want := DefaultTxPowerDBm - 5; !almostEqual(sig.DBm, want, 1e-9) {
		t.Fatalf("DBm = %v, want %v", sig.DBm, want)
	}
	if sig.Percent <= 50 {
		t.Fatalf("Percent = %v, want > 50", sig.Percent)
	}
}

func TestBuild_WallScenario(t *testing.T) {
	g := mustGrid(t, 10, 10, 10)
	if err := g.Set(5, 5, 5, model.Wall); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b := NewConnectivityBuilder(g.Freeze())

	nodes := []model.Node{
		{Name: "a", Pos: mgl64.Vec3{2.5, 5.5, 5.5}},
		{Name: "b", Pos: mgl64.Vec3{7.5, 5.5, 5.5}},
	}
	res, err := b.Build(context.Background(), nodes, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Edges) != 1 {
		t.Fatalf("expected the link through one wall cell to survive")
	}
	if want := DefaultTxPowerDBm - 9; !almostEqual(res.Edges[0].Signal.DBm, want, 1e-9) {
		t.Fatalf("DBm = %v, want %v", res.Edges[0].Signal.DBm, want)
	}
}

func TestBuild_DistanceCutoff(t *testing.T) {
	b := emptyBuilder(t)
	nodes := []model.Node{
		{Name: "near", Pos: mgl64.Vec3{0.5, 0.5, 0.5}},
		{Name: "far", Pos: mgl64.Vec3{150.5, 0.5, 0.5}},
	}
	res, err := b.Build(context.Background(), nodes, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Edges) != 0 || res.Rejected != 1 {
		t.Fatalf("Edges = %v, Rejected = %d; want none and 1", res.Edges, res.Rejected)
	}
}

func scatteredNodes(n int) []model.Node {
	nodes := make([]model.Node, n)
	for i := range nodes {
		nodes[i] = model.Node{
			Name:        fmt.Sprintf("ctrl-%03d", i),
			Pos:         mgl64.Vec3{float64(i%7) + 0.5, float64(i*3%10) + 0.25, float64(i%3) + 0.75},
			Beamforming: i%4 == 0,
		}
	}
	return nodes
}

func TestBuild_SymmetricAndIdempotent(t *testing.T) {
	g := mustGrid(t, 10, 10, 4)
	if err := g.FillBox(3, 0, 0, 4, 8, 4, model.Shelf); err != nil {
		t.Fatalf("FillBox: %v", err)
	}
	b := NewConnectivityBuilder(g.Freeze())
	nodes := scatteredNodes(12)

	first, err := b.Build(context.Background(), nodes, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b.Workers = 1
	second, err := b.Build(context.Background(), nodes, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(first.Edges, second.Edges) {
		t.Fatalf("re-running the pass changed the edges")
	}

	hears := first.Hears()
	for a, row := range hears {
		for c, sig := range row {
			if hears[c][a] != sig {
				t.Fatalf("hears[%s][%s] = %v but hears[%s][%s] = %v", a, c, sig, c, a, hears[c][a])
			}
		}
	}

	for _, e := range first.Edges {
		var na, nc model.Node
		for _, n := range nodes {
			switch n.Name {
			case e.A:
				na = n
			case e.B:
				nc = n
			}
		}
		ab, _, _ := b.Signal(context.Background(), na, nc)
		ba, _, _ := b.Signal(context.Background(), nc, na)
		if ab != ba {
			t.Fatalf("Signal(%s,%s) = %v, Signal(%s,%s) = %v", e.A, e.B, ab, e.B, e.A, ba)
		}
	}
}

func TestBuild_OneSidedBeamforming(t *testing.T) {
	b := emptyBuilder(t)
	a := model.Node{Name: "a", Pos: mgl64.Vec3{2.5, 5.5, 5.5}}
	c := model.Node{Name: "b", Pos: mgl64.Vec3{7.5, 5.5, 5.5}}

	a.Beamforming = true
	sig, ok, err := b.Signal(context.Background(), c, a)
	if err != nil || !ok {
		t.Fatalf("Signal = %v, %v", ok, err)
	}
	if want := DefaultTxPowerDBm + DefaultBeamformGainDB - 5; !almostEqual(sig.DBm, want, 1e-9) {
		t.Fatalf("beamforming first endpoint: DBm = %v, want %v", sig.DBm, want)
	}

	a.Beamforming, c.Beamforming = false, true
	sig, _, _ = b.Signal(context.Background(), a, c)
	if want := DefaultTxPowerDBm - 5; !almostEqual(sig.DBm, want, 1e-9) {
		t.Fatalf("beamforming second endpoint: DBm = %v, want %v", sig.DBm, want)
	}
}

func TestBuild_Progress(t *testing.T) {
	b := emptyBuilder(t)
	b.Workers = 4
	nodes := scatteredNodes(20)

	var (
		mu     sync.Mutex
		values []float64
		steps  []string
	)
	_, err := b.Build(context.Background(), nodes, func(v float64, step string) {
		mu.Lock()
		defer mu.Unlock()
		values = append(values, v)
		steps = append(steps, step)
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if values[0] != 0 || steps[0] != StepSignal {
		t.Fatalf("first report = (%v, %q), want (0, %q)", values[0], steps[0], StepSignal)
	}
	last := len(values) - 1
	if values[last] != 1 || steps[last] != StepConnections {
		t.Fatalf("last report = (%v, %q), want (1, %q)", values[last], steps[last], StepConnections)
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress went backwards: %v", values)
		}
	}
	// 190 pairs, one report per whole percent plus the two bookends.
	if len(values) > 102 {
		t.Fatalf("got %d reports, want at most 102", len(values))
	}
}

func TestBuild_StructuralFailures(t *testing.T) {
	frozen := mustGrid(t, 4, 4, 4).Freeze()
	p := func(x float64) mgl64.Vec3 { return mgl64.Vec3{x, 1, 1} }

	tests := []struct {
		name  string
		build func() *ConnectivityBuilder
		nodes []model.Node
	}{
		{"empty node set", func() *ConnectivityBuilder { return NewConnectivityBuilder(frozen) }, nil},
		{"nil grid", func() *ConnectivityBuilder { return NewConnectivityBuilder(nil) }, []model.Node{{Name: "a", Pos: p(1)}}},
		{"unfrozen grid", func() *ConnectivityBuilder { return NewConnectivityBuilder(mustGrid(t, 4, 4, 4)) }, []model.Node{{Name: "a", Pos: p(1)}}},
		{"duplicate names", func() *ConnectivityBuilder { return NewConnectivityBuilder(frozen) }, []model.Node{{Name: "a", Pos: p(1)}, {Name: "a", Pos: p(2)}}},
		{"coincident nodes", func() *ConnectivityBuilder { return NewConnectivityBuilder(frozen) }, []model.Node{{Name: "a", Pos: p(1)}, {Name: "b", Pos: p(1)}}},
		{"ray-path without oracle", func() *ConnectivityBuilder {
			b := NewConnectivityBuilder(frozen)
			b.Mode = ModeRayPath
			return b
		}, []model.Node{{Name: "a", Pos: p(1)}, {Name: "b", Pos: p(2)}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build().Build(context.Background(), tc.nodes, nil); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestBuild_Cancelled(t *testing.T) {
	b := emptyBuilder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, scatteredNodes(6), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type stubOracle struct {
	fail    map[mgl64.Vec3]error
	badKind map[mgl64.Vec3]bool
}

func (o stubOracle) Trace(_ context.Context, tx, rx mgl64.Vec3) ([]model.RayPathRecord, error) {
	if err := o.fail[tx]; err != nil {
		return nil, err
	}
	if err := o.fail[rx]; err != nil {
		return nil, err
	}
	kind := model.RayDirect
	if o.badKind[tx] || o.badKind[rx] {
		kind = model.RayPathKind(42)
	}
	return []model.RayPathRecord{{Kind: kind, Points: []mgl64.Vec3{tx, rx}}}, nil
}

func TestBuild_RayPathPairFailuresAreSkipped(t *testing.T) {
	nodes := []model.Node{
		{Name: "a", Pos: mgl64.Vec3{1, 1, 1}},
		{Name: "b", Pos: mgl64.Vec3{3, 1, 1}},
		{Name: "c", Pos: mgl64.Vec3{1, 3, 1}},
		{Name: "d", Pos: mgl64.Vec3{3, 3, 1}},
	}
	b := emptyBuilder(t)
	b.Mode = ModeRayPath
	b.Oracle = stubOracle{
		// Not wrapped: the builder must classify it as an oracle failure.
		fail:    map[mgl64.Vec3]error{nodes[2].Pos: fmt.Errorf("tracer offline: %w", ErrInvalidInput)},
		badKind: map[mgl64.Vec3]bool{nodes[3].Pos: true},
	}

	res, err := b.Build(context.Background(), nodes, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// a-b is the only pair touching neither c nor d.
	if len(res.Edges) != 1 || res.Edges[0].A != "a" || res.Edges[0].B != "b" {
		t.Fatalf("Edges = %v, want only a-b", res.Edges)
	}
	var oracle, kind int
	for _, pe := range res.PairErrors {
		switch {
		case errors.Is(pe, ErrGeometryOracle):
			oracle++
		case errors.Is(pe, ErrUnsupportedPathKind):
			kind++
		default:
			t.Fatalf("unexpected pair error %v", pe)
		}
	}
	// c fails with a,b,d; d has a bad kind with a,b.
	if oracle != 3 || kind != 2 {
		t.Fatalf("oracle failures = %d, kind failures = %d; want 3 and 2", oracle, kind)
	}
}

func TestBuild_RayPathSensitivity(t *testing.T) {
	b := emptyBuilder(t)
	b.Mode = ModeRayPath
	b.Oracle = stubOracle{}
	nodes := []model.Node{
		{Name: "a", Pos: mgl64.Vec3{0, 0, 0}},
		{Name: "b", Pos: mgl64.Vec3{90, 0, 0}},
	}

	// FSPL over 90m at 2.4GHz is about 79dB, so 4dBm arrives near -75dBm.
	res, err := b.Build(context.Background(), nodes, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Edges) != 1 {
		t.Fatalf("expected a link above the default sensitivity")
	}
	b.SensitivityDBm = -60
	if res, err = b.Build(context.Background(), nodes, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Edges) != 0 || res.Rejected != 1 {
		t.Fatalf("expected the weak link to be dropped, got %v", res.Edges)
	}
}

func TestParseLossMode(t *testing.T) {
	for in, want := range map[string]LossMode{"": ModeOcclusion, "occlusion": ModeOcclusion, "Ray-Path": ModeRayPath} {
		got, err := ParseLossMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseLossMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLossMode("voodoo"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
