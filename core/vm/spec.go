package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// SpecID identifies a set of protocol rules. Values are ordered so that a
// later fork compares greater than an earlier one.
type SpecID uint8

const (
	Frontier SpecID = iota
	FrontierThawing
	Homestead
	DaoFork
	Tangerine
	SpuriousDragon
	Byzantium
	Constantinople
	Petersburg
	Istanbul
	MuirGlacier
	Berlin
	London
	ArrowGlacier
	GrayGlacier
	Merge
	Shanghai
	Cancun
	Prague
)

var specNames = [...]string{
	Frontier:        "frontier",
	FrontierThawing: "frontier_thawing",
	Homestead:       "homestead",
	DaoFork:         "dao_fork",
	Tangerine:       "tangerine",
	SpuriousDragon:  "spurious_dragon",
	Byzantium:       "byzantium",
	Constantinople:  "constantinople",
	Petersburg:      "petersburg",
	Istanbul:        "istanbul",
	MuirGlacier:     "muir_glacier",
	Berlin:          "berlin",
	London:          "london",
	ArrowGlacier:    "arrow_glacier",
	GrayGlacier:     "gray_glacier",
	Merge:           "merge",
	Shanghai:        "shanghai",
	Cancun:          "cancun",
	Prague:          "prague",
}

func (s SpecID) String() string {
	if int(s) < len(specNames) {
		return specNames[s]
	}
	return "unknown"
}

// IsEnabledIn reports whether the rules of fork are active under s.
func (s SpecID) IsEnabledIn(fork SpecID) bool {
	return s >= fork
}

// isMerged reports whether the chain has transitioned to proof-of-stake at
// block num.
func isMerged(cfg *params.ChainConfig, num *big.Int) bool {
	if cfg.MergeNetsplitBlock != nil && cfg.MergeNetsplitBlock.Cmp(num) <= 0 {
		return true
	}
	return cfg.TerminalTotalDifficulty != nil && cfg.TerminalTotalDifficulty.Sign() == 0
}

// SpecIDFor maps the fork rules exposed by a ChainConfig at the given block
// number and timestamp to a SpecID.
func SpecIDFor(cfg *params.ChainConfig, num uint64, ts uint64) SpecID {
	bn := new(big.Int).SetUint64(num)
	switch {
	case cfg.IsPrague(bn, ts):
		return Prague
	case cfg.IsCancun(bn, ts):
		return Cancun
	case cfg.IsShanghai(bn, ts):
		return Shanghai
	case isMerged(cfg, bn):
		return Merge
	case cfg.IsGrayGlacier(bn):
		return GrayGlacier // EIP-5133
	case cfg.IsArrowGlacier(bn):
		return ArrowGlacier // EIP-4345
	case cfg.IsLondon(bn):
		return London
	case cfg.IsBerlin(bn):
		return Berlin
	case cfg.IsMuirGlacier(bn):
		return MuirGlacier
	case cfg.IsIstanbul(bn):
		return Istanbul
	case cfg.IsPetersburg(bn):
		return Petersburg
	case cfg.IsConstantinople(bn):
		return Constantinople
	case cfg.IsByzantium(bn):
		return Byzantium
	case cfg.IsEIP158(bn):
		return SpuriousDragon
	case cfg.IsEIP150(bn):
		return Tangerine
	case cfg.IsDAOFork(bn):
		return DaoFork
	case cfg.IsHomestead(bn):
		return Homestead
	default:
		return Frontier
	}
}
