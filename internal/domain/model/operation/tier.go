package operation

import "fmt"

// RiskTier classifies an operation by blast radius.
// The tier decides whether a recovery snapshot must be taken before execution.
type RiskTier int

const (
	// TierReadOnly is for operations with no state change
	TierReadOnly RiskTier = 0
	// TierSingleUnit is for single-file or single-unit state changes
	TierSingleUnit RiskTier = 1
	// TierMultiUnit is for multi-file or multi-unit state changes
	TierMultiUnit RiskTier = 2
	// TierDestructive is reserved; not executable without an explicit
	// confirmation mechanism outside this core
	TierDestructive RiskTier = 3
)

// RequiresSnapshot reports whether a recovery point must exist before execution
func (t RiskTier) RequiresSnapshot() bool {
	return t >= TierSingleUnit
}

// IsValid reports whether the tier is within the 0-3 range
func (t RiskTier) IsValid() bool {
	return t >= TierReadOnly && t <= TierDestructive
}

func (t RiskTier) String() string {
	switch t {
	case TierReadOnly:
		return "read_only"
	case TierSingleUnit:
		return "single_unit"
	case TierMultiUnit:
		return "multi_unit"
	case TierDestructive:
		return "destructive"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}
