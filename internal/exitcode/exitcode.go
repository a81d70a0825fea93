// Package exitcode holds the process exit codes the transport reports to the
// calling mail system. Values follow sysexits.h so that MTAs can tell a
// permanent failure (bounce) from a temporary one (requeue).
package exitcode

const (
	// OK indicates successful completion
	OK = 0

	// Usage indicates a command line usage error
	Usage = 64

	// NoUser indicates the recipient address is unknown
	NoUser = 67

	// Unavailable indicates the remote service refused the message
	Unavailable = 69

	// IOError indicates a failure reading input
	IOError = 74

	// TempFail indicates a temporary failure, the MTA should retry later
	TempFail = 75

	// Config indicates a configuration error
	Config = 78
)
