package can

// ImplementedInterfaces lists the interface names registered by this
// module's backends (see socketcan and virtual subpackages, each of which
// calls RegisterInterface from an init()).
var ImplementedInterfaces = []string{
	"socketcan",
	"virtual",
}
