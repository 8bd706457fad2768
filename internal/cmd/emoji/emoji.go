// Package emoji provides symbol constants for CLI output.
package emoji

// Status symbols shared by the check and sync commands.
const (
	// Success marks a reachable dependency or a completed write.
	Success = "✓"

	// Error marks a failed check or write.
	Error = "✗"

	// Warning marks a degraded but non-fatal state.
	Warning = "!"

	// Optional marks a disabled optional component, such as the mirror.
	Optional = "-"
)

// Status returns Success or Error for ok.
func Status(ok bool) string {
	if ok {
		return Success
	}
	return Error
}
