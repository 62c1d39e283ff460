package build

// DeploymentType distinguishes binaries built with the dev tag from release
// builds.
type DeploymentType byte

const (
	// Development builds route unit test logging through LoggingType and
	// default the dialer to debug logging.
	Development DeploymentType = iota

	// Production builds only log through the generator a binary installs.
	Production
)

// String returns a human readable name for a build type.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// IsDevBuild returns true if the binary was built with the dev tag.
func IsDevBuild() bool {
	return Deployment == Development
}
