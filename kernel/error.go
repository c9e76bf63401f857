package kernel

// ErrorKind classifies a kernel error so callers can react to a category of
// failures without comparing against every error value a package defines.
type ErrorKind uint8

// The list of supported error kinds.
const (
	// KindGeneric is used by errors that do not fall into any other
	// category.
	KindGeneric ErrorKind = iota

	// KindNotPresent indicates that the hardware an operation depends on
	// is missing or has not been detected.
	KindNotPresent

	// KindInvalidArgument indicates that an argument is outside of the
	// range accepted by the operation.
	KindInvalidArgument

	// KindInvalidConfig indicates that a firmware-provided configuration
	// is malformed or unsupported.
	KindInvalidConfig

	// KindInvalidState indicates that the operation is not allowed in the
	// current lifecycle stage of the component.
	KindInvalidState
)

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This requirement stems
// from the fact that the Go allocator is not available to us so we cannot use
// errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Kind classifies the error.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// HasKind returns true if e is not nil and belongs to the supplied kind.
func (e *Error) HasKind(kind ErrorKind) bool {
	return e != nil && e.Kind == kind
}
