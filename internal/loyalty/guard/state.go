package guard

// State is where the guard's session decision stands.
type State int

const (
	Hydrating State = iota
	Validating
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Hydrating:
		return "hydrating"
	case Validating:
		return "validating"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}
