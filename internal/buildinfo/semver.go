package buildinfo

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SemVer is a parsed semantic version used to describe how two builds relate.
type SemVer struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string // e.g., "alpha", "beta.1", "rc.2"
	Raw        string
}

// semverRegex matches versions like v0.2.6, 0.2.6, v1.0.0-alpha, v1.0.0-beta.1
var semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9.]+))?$`)

// ParseSemVer parses a version string. Accepts "v0.2.6", "0.2.6",
// "1.0.0-beta.1" and the like.
func ParseSemVer(s string) (*SemVer, error) {
	s = strings.TrimSpace(s)
	matches := semverRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}
	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])
	return &SemVer{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: matches[4],
		Raw:        s,
	}, nil
}

func (v *SemVer) String() string {
	if v.Prerelease != "" {
		return fmt.Sprintf("%d.%d.%d-%s", v.Major, v.Minor, v.Patch, v.Prerelease)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
// A release compares greater than any prerelease of the same triple,
// e.g. 1.0.0 > 1.0.0-alpha.
func (v *SemVer) Compare(other *SemVer) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	if v.Prerelease != other.Prerelease {
		if v.Prerelease < other.Prerelease {
			return -1
		}
		return 1
	}
	return 0
}

// DescribeBuilds renders how a recorded build relates to the running one.
// Build IDs have the form "<version>+<commit>"; when both version parts parse
// as semver the note states the ordering, otherwise it just reports the
// mismatch.
func DescribeBuilds(running, recorded string) string {
	if running == recorded {
		return "same build " + running
	}
	rv, err1 := ParseSemVer(versionPart(running))
	ov, err2 := ParseSemVer(versionPart(recorded))
	if err1 != nil || err2 != nil {
		return fmt.Sprintf("recorded build %s differs from running build %s", recorded, running)
	}
	switch rv.Compare(ov) {
	case 1:
		return fmt.Sprintf("recorded build %s is older than running build %s", recorded, running)
	case -1:
		return fmt.Sprintf("recorded build %s is newer than running build %s", recorded, running)
	default:
		// Same version, different commit.
		return fmt.Sprintf("recorded build %s differs from running build %s at the same version", recorded, running)
	}
}

func versionPart(buildID string) string {
	if i := strings.IndexByte(buildID, '+'); i >= 0 {
		return buildID[:i]
	}
	return buildID
}
