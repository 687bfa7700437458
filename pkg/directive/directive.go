// Package directive parses the "-- Stash:" opt-in/opt-out comment lines an
// upper layer embeds into SQL text, in the shapes documented in
// SPEC_FULL.md §6.3:
//
//	-- Stash:TTL=0
//	-- Stash:TTL=300
//	-- Stash:TTL=3600,Sliding=900
//	-- Stash:Profile=hot-data
//	-- Stash:NoCache
package directive

import (
	"regexp"
	"strconv"
	"strings"
)

// Directive is the outcome of parsing a SQL text for a Stash comment line.
type Directive struct {
	IsOptOut    bool
	IsOptIn     bool
	AbsoluteTTL int // seconds; 0 means "use defaults"
	SlidingTTL  int // seconds; meaningful only when HasSliding is true
	HasSliding  bool
	ProfileName string
}

var (
	lineMarker = "-- Stash:"

	ttlOnly       = regexp.MustCompile(`^TTL=(\d+)$`)
	ttlSliding    = regexp.MustCompile(`^TTL=(\d+),Sliding=(\d+)$`)
	profileMarker = regexp.MustCompile(`^Profile=(.+)$`)
)

// Parse scans every line of sql for "-- Stash:" directives; a later opt-in
// line overwrites the fields an earlier one set. Only one directive is
// expected per query; if both an opt-in and NoCache appear (e.g. across
// separate comment lines), opt-out wins per spec.
func Parse(sql string) Directive {
	var d Directive

	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, lineMarker)
		if idx == -1 {
			continue
		}
		rhs := strings.TrimSpace(line[idx+len(lineMarker):])

		switch {
		case rhs == "NoCache":
			d.IsOptOut = true
			// Opt-out supersedes everything; stop scanning further lines.
			return d

		case ttlSliding.MatchString(rhs):
			m := ttlSliding.FindStringSubmatch(rhs)
			abs, _ := strconv.Atoi(m[1])
			slide, _ := strconv.Atoi(m[2])
			d.IsOptIn = true
			d.AbsoluteTTL = abs
			d.SlidingTTL = slide
			d.HasSliding = true

		case ttlOnly.MatchString(rhs):
			m := ttlOnly.FindStringSubmatch(rhs)
			abs, _ := strconv.Atoi(m[1])
			d.IsOptIn = true
			d.AbsoluteTTL = abs

		case profileMarker.MatchString(rhs):
			m := profileMarker.FindStringSubmatch(rhs)
			d.IsOptIn = true
			d.ProfileName = strings.TrimSpace(m[1])
		}
	}

	return d
}
