package scanner

// Strategy identifies which pass of a scan produced the candidates.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyPrimary
	StrategyAria
	StrategyGeneric
	StrategyTiles
)

func (s Strategy) String() string {
	switch s {
	case StrategyPrimary:
		return "primary"
	case StrategyAria:
		return "aria"
	case StrategyGeneric:
		return "generic"
	case StrategyTiles:
		return "tiles"
	default:
		return "none"
	}
}
