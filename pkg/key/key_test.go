package key

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/stash/pkg/driverio"
)

func TestFingerprintStableForIdenticalCommands(t *testing.T) {
	gen := New("stash:")
	cmd := driverio.Command{
		Text: "SELECT * FROM Products WHERE Id = @id",
		Parameters: []driverio.Parameter{
			{Name: "@id", Value: 1, DeclaredType: "int32"},
		},
	}

	a := gen.Fingerprint(cmd)
	b := gen.Fingerprint(cmd)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "stash:")
}

func TestFingerprintDiffersOnParameterValue(t *testing.T) {
	gen := New("")
	base := driverio.Command{
		Text:       "SELECT * FROM P WHERE Id=@id",
		Parameters: []driverio.Parameter{{Name: "@id", Value: 1, DeclaredType: "int32"}},
	}
	other := base
	other.Parameters = []driverio.Parameter{{Name: "@id", Value: 2, DeclaredType: "int32"}}

	assert.NotEqual(t, gen.Fingerprint(base), gen.Fingerprint(other))
}

func TestFingerprintDiffersOnParameterName(t *testing.T) {
	gen := New("")
	base := driverio.Command{Text: "SELECT 1", Parameters: []driverio.Parameter{{Name: "a", Value: 1, DeclaredType: "int32"}}}
	other := driverio.Command{Text: "SELECT 1", Parameters: []driverio.Parameter{{Name: "b", Value: 1, DeclaredType: "int32"}}}
	assert.NotEqual(t, gen.Fingerprint(base), gen.Fingerprint(other))
}

func TestFingerprintDiffersOnDeclaredType(t *testing.T) {
	gen := New("")
	base := driverio.Command{Text: "SELECT 1", Parameters: []driverio.Parameter{{Name: "a", Value: "1", DeclaredType: "string"}}}
	other := driverio.Command{Text: "SELECT 1", Parameters: []driverio.Parameter{{Name: "a", Value: "1", DeclaredType: "int32"}}}
	assert.NotEqual(t, gen.Fingerprint(base), gen.Fingerprint(other))
}

func TestFingerprintDiffersOnText(t *testing.T) {
	gen := New("")
	a := gen.Fingerprint(driverio.Command{Text: "SELECT 1"})
	b := gen.Fingerprint(driverio.Command{Text: "SELECT 2"})
	assert.NotEqual(t, a, b)
}

func TestFingerprintDiffersForNullAndNonNullParameter(t *testing.T) {
	gen := New("")
	a := gen.Fingerprint(driverio.Command{
		Text:       "SELECT 1",
		Parameters: []driverio.Parameter{{Name: "a", Value: nil, DeclaredType: "string"}},
	})
	b := gen.Fingerprint(driverio.Command{
		Text:       "SELECT 1",
		Parameters: []driverio.Parameter{{Name: "a", Value: 42, DeclaredType: "string"}},
	})
	assert.NotEqual(t, a, b)
}

func TestFingerprintIsHexSHA256WithPrefix(t *testing.T) {
	gen := New("myprefix:")
	fp := gen.Fingerprint(driverio.Command{Text: "SELECT 1"})
	assert.True(t, len(fp) == len("myprefix:")+64)
}
