package release

import "github.com/Masterminds/semver/v3"

// SelectLatest picks the latest eligible release. Drafts are never eligible;
// prereleases only when includePrereleases is set. Releases whose tag parses
// as a semantic version win over those that do not, highest version first.
// Otherwise the most recently published release wins. Returns nil when
// nothing is eligible.
func SelectLatest(releases []Release, includePrereleases bool) *Release {
	var (
		best    *Release
		bestVer *semver.Version
		newest  *Release
	)
	for i := range releases {
		r := &releases[i]
		if r.Draft || (r.Prerelease && !includePrereleases) {
			continue
		}
		if v, err := semver.NewVersion(r.TagName); err == nil {
			if bestVer == nil || v.GreaterThan(bestVer) {
				best, bestVer = r, v
			}
			continue
		}
		if newest == nil || r.PublishedAt.After(newest.PublishedAt) {
			newest = r
		}
	}
	if best != nil {
		return best
	}
	return newest
}
