package optimizer

import "math"

// Cost model constants from §4.5.b (typical values).
const (
	SeqIOCost         = 1.0
	RandomIOCost      = 1.5
	PerTupleCPU       = 0.01
	PerComparisonCPU  = 0.001
	PerHashCPU        = 0.005
	PerSortCompareCPU = 0.002
)

// Statistic is the subset of catalog statistics the cost model and
// selectivity estimators consult for one table. V is the number of
// distinct values per column, keyed by column name, used by the
// equality selectivity estimator 1/V(a,r).
type Statistic struct {
	Table      string
	Rows       int64
	Blocks     int64 // data blocks, b_r
	DistinctBy map[string]int64
	IndexedBy  map[string]bool // column -> has an index
	BTreeHeight int64           // h, for B-tree cost formulas
}

func (s Statistic) distinct(column string) int64 {
	if s.DistinctBy == nil {
		return s.Rows
	}
	if v, ok := s.DistinctBy[column]; ok && v > 0 {
		return v
	}
	return s.Rows
}

// Cost is an estimated plan cost, split for inspection; Total is what
// the GA and plan comparisons optimize.
type Cost struct {
	IO  float64
	CPU float64
}

func (c Cost) Total() float64 { return c.IO + c.CPU }

func (c Cost) Add(o Cost) Cost { return Cost{IO: c.IO + o.IO, CPU: c.CPU + o.CPU} }

// TableScanCost implements §4.5.b's table scan formula: b_r·1.0 + n_r·0.01.
func TableScanCost(s Statistic) Cost {
	return Cost{IO: float64(s.Blocks) * SeqIOCost, CPU: float64(s.Rows) * PerTupleCPU}
}

// HashIndexLookupCost implements the hash index lookup formula:
// 1.5 + data_blocks.
func HashIndexLookupCost(dataBlocks int64) Cost {
	return Cost{IO: RandomIOCost + float64(dataBlocks)*SeqIOCost}
}

// BTreeEqualityCost implements (h+1)·1.5 + data_blocks.
func BTreeEqualityCost(height, dataBlocks int64) Cost {
	return Cost{IO: float64(height+1)*RandomIOCost + float64(dataBlocks)*SeqIOCost}
}

// BTreeRangeCost implements (h+1)·1.5 + leaf_scan + data_blocks·1.5.
func BTreeRangeCost(height, leafScan, dataBlocks int64) Cost {
	return Cost{IO: float64(height+1)*RandomIOCost + float64(leafScan) + float64(dataBlocks)*RandomIOCost}
}

// FilterCost implements the pipelined filter formula: pass-through I/O,
// CPU rows·conjuncts·0.001. A filter never adds its own I/O; pass inOut
// to add the filter's CPU atop the source cost.
func FilterCost(source Cost, rows int64, conjuncts int) Cost {
	return Cost{IO: source.IO, CPU: source.CPU + float64(rows)*float64(conjuncts)*PerComparisonCPU}
}

// BlockNestedLoopJoinCost implements b_outer + b_outer·b_inner.
func BlockNestedLoopJoinCost(outerBlocks, innerBlocks int64) Cost {
	return Cost{IO: float64(outerBlocks) + float64(outerBlocks)*float64(innerBlocks)}
}

// HashJoinCost implements build I/O + probe I/O + build_blocks·2.0 CPU.
func HashJoinCost(buildIO, probeIO Cost, buildBlocks int64) Cost {
	return Cost{
		IO:  buildIO.IO + probeIO.IO,
		CPU: buildIO.CPU + probeIO.CPU + float64(buildBlocks)*2*PerHashCPU,
	}
}

// IndexNestedLoopJoinCost implements outer_io + n_outer·index_cost + data_blocks.
func IndexNestedLoopJoinCost(outerIO Cost, outerRows int64, indexCost Cost, dataBlocks int64) Cost {
	return Cost{
		IO:  outerIO.IO + float64(outerRows)*indexCost.IO + float64(dataBlocks),
		CPU: outerIO.CPU + float64(outerRows)*indexCost.CPU,
	}
}

// SortCost implements source_io + 2·b·(passes+1) I/O plus n·log2(n)·0.002 CPU.
func SortCost(sourceIO Cost, blocks int64, passes int, rows int64) Cost {
	cpu := float64(0)
	if rows > 1 {
		cpu = float64(rows) * math.Log2(float64(rows)) * PerSortCompareCPU
	}
	return Cost{
		IO:  sourceIO.IO + 2*float64(blocks)*float64(passes+1),
		CPU: sourceIO.CPU + cpu,
	}
}

// Selectivity returns a conjunct's estimated selectivity per §4.5.b.
// kind is one of: "eq", "range", "between", "like", "in", "exists".
func Selectivity(kind string, stat Statistic, column string) float64 {
	switch kind {
	case "eq":
		d := stat.distinct(column)
		if d <= 0 {
			d = 1
		}
		return 1.0 / float64(d)
	case "range":
		return 0.33
	case "between":
		return 0.25
	case "like":
		return 0.05
	case "in":
		return 0.3
	case "exists":
		return 0.5
	default:
		return 1.0
	}
}

// CombineAND returns the multiplicative combination of conjunct
// selectivities.
func CombineAND(sels ...float64) float64 {
	result := 1.0
	for _, s := range sels {
		result *= s
	}
	return result
}

// CombineOR returns the inclusion-exclusion combination of two
// selectivities: P(a∪b) = P(a) + P(b) - P(a)·P(b).
func CombineOR(a, b float64) float64 {
	return a + b - a*b
}
