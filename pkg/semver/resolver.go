package semver

import (
	"fmt"
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// Version statuses.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
	StatusDisabled   = "disabled"
)

// VersionRecord is one published version of a service.
type VersionRecord struct {
	ID      string
	Version string
	Status  string
}

// ResolveVersion picks the highest version matching rangeStr. Disabled
// versions never match; active versions win over deprecated ones.
// An empty range matches every version.
func ResolveVersion(versions []VersionRecord, rangeStr string) (*VersionRecord, error) {
	var constraint *masterminds.Constraints
	if rangeStr != "" {
		expr := rangeStr
		if IsMajorOnly(rangeStr) {
			expr = rangeStr + ".x"
		}
		c, err := masterminds.NewConstraint(expr)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid range %q: %w", resolverLogPrefix, rangeStr, err)
		}
		constraint = c
	}

	type candidate struct {
		rec *VersionRecord
		ver *masterminds.Version
	}
	var matching []candidate
	for i := range versions {
		v := &versions[i]
		if v.Status == StatusDisabled {
			continue
		}
		sv, err := masterminds.NewVersion(v.Version)
		if err != nil {
			continue
		}
		if constraint != nil && !constraint.Check(sv) {
			continue
		}
		matching = append(matching, candidate{rec: v, ver: sv})
	}
	if len(matching) == 0 {
		return nil, nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		ai := matching[i].rec.Status == StatusActive
		aj := matching[j].rec.Status == StatusActive
		if ai != aj {
			return ai
		}
		return matching[i].ver.GreaterThan(matching[j].ver)
	})
	return matching[0].rec, nil
}
