package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

const (
	// tardinessDecay attenuates a path delayed by ~1000ns to ~10%.
	tardinessDecay = 0.0023

	percentSlope  = 0.2
	percentOffset = 70.0

	DefaultTxPowerDBm     = 4.0
	DefaultBeamformGainDB = 6.0
	DefaultMaxPaths       = 5
)

// DBmToMilliwatts converts an absolute power level to linear milliwatts.
func DBmToMilliwatts(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// MilliwattsToDBm is the inverse of DBmToMilliwatts.
func MilliwattsToDBm(mw float64) float64 {
	return 10 * math.Log10(mw)
}

// OmniSignal combines multipath arrivals without phase information: each
// path contributes its linear power weighted by exp(-a*(delay-minDelay)).
func OmniSignal(recvDBm, delaysNS []float64) (float64, error) {
	if len(recvDBm) == 0 {
		return 0, fmt.Errorf("%w: no paths to combine", ErrInvalidInput)
	}
	if len(recvDBm) != len(delaysNS) {
		return 0, fmt.Errorf("%w: %d powers but %d delays", ErrInvalidInput, len(recvDBm), len(delaysNS))
	}
	minDelay := math.Inf(1)
	for _, d := range delaysNS {
		if math.IsNaN(d) {
			return 0, fmt.Errorf("%w: NaN delay", ErrInvalidInput)
		}
		minDelay = math.Min(minDelay, d)
	}
	total := 0.0
	for i, p := range recvDBm {
		total += DBmToMilliwatts(p) * math.Exp(-tardinessDecay*(delaysNS[i]-minDelay))
	}
	return MilliwattsToDBm(total), nil
}

// BeamformedSignal steers all gain at the strongest path.
func BeamformedSignal(txPowerDBm, gainDB, strongestLossDB float64) float64 {
	return txPowerDBm + gainDB - strongestLossDB
}

// Percent maps dBm onto [0,100] with a logistic curve centred on -70 dBm.
func Percent(dbm float64) float64 {
	if math.IsInf(dbm, -1) {
		return 0
	}
	return 100 / (1 + math.Exp(-percentSlope*(dbm+percentOffset)))
}

// Combiner turns a set of path losses into a SignalResult.
type Combiner struct {
	TxPowerDBm     float64
	BeamformGainDB float64
	// MaxPaths keeps only the K lowest-loss paths. Zero or negative keeps
	// every path.
	MaxPaths int
}

// DefaultCombiner is the BLE radio profile.
func DefaultCombiner() Combiner {
	return Combiner{
		TxPowerDBm:     DefaultTxPowerDBm,
		BeamformGainDB: DefaultBeamformGainDB,
		MaxPaths:       DefaultMaxPaths,
	}
}

// Combine evaluates lossesDB/delaysNS (parallel slices) in omni or
// beamformed mode.
func (c Combiner) Combine(lossesDB, delaysNS []float64, beamforming bool) (model.SignalResult, error) {
	if len(lossesDB) == 0 {
		return model.SignalResult{}, fmt.Errorf("%w: no paths to combine", ErrInvalidInput)
	}
	if len(lossesDB) != len(delaysNS) {
		return model.SignalResult{}, fmt.Errorf("%w: %d losses but %d delays", ErrInvalidInput, len(lossesDB), len(delaysNS))
	}

	order := make([]int, len(lossesDB))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return lossesDB[order[i]] < lossesDB[order[j]] })
	if c.MaxPaths > 0 && len(order) > c.MaxPaths {
		order = order[:c.MaxPaths]
	}

	var dbm float64
	if beamforming {
		dbm = BeamformedSignal(c.TxPowerDBm, c.BeamformGainDB, lossesDB[order[0]])
	} else {
		recv := make([]float64, len(order))
		delays := make([]float64, len(order))
		for i, idx := range order {
			recv[i] = c.TxPowerDBm - lossesDB[idx]
			delays[i] = delaysNS[idx]
		}
		var err error
		if dbm, err = OmniSignal(recv, delays); err != nil {
			return model.SignalResult{}, err
		}
	}
	return model.SignalResult{Percent: Percent(dbm), DBm: dbm}, nil
}
