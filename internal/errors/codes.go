package errors

// Error codes for the sable toolchain
// These codes are used in diagnostics to provide consistent error
// identification across the CLI and tests.
//
// Error code ranges:
// E0001-E0099: parse and IR lowering errors
// E0100-E0199: Verification errors
// E0800-E0899: Warning codes

const (
	// E0001: a named value is referenced but never defined
	ErrorUndefinedValue = "E0001"

	// E0002: the same value name is defined twice
	ErrorDuplicateValue = "E0002"

	// E0003: the same block label appears twice in a function
	ErrorDuplicateLabel = "E0003"

	// E0004: a type name is not recognized
	ErrorUnknownType = "E0004"

	// E0005: a terminator targets a label with no block
	ErrorUnknownLabel = "E0005"

	// E0006: an instruction follows the block terminator
	ErrorMisplacedInstruction = "E0006"

	// E0007: a block ends without a terminator
	ErrorMissingTerminator = "E0007"

	// E0008: an operand has the wrong kind or type for its instruction
	ErrorTypeMismatch = "E0008"

	// E0009: the source text does not parse
	ErrorSyntax = "E0009"

	// E0100: the lowered function failed structural verification
	ErrorVerifyFailed = "E0100"
)
