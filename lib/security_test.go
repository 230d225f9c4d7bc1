// Package lib holds cross-package checks on how randomness, secrets and
// untrusted input are handled.
package lib

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourceFiles returns every non-test Go file below lib/.
func sourceFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

// TestMathRandOnlyForScheduling verifies that math/rand is only used where a
// seeded generator picks relays and spaces timestamps. Keys, nonces, blinding
// factors and proof secrets must come from a CSPRNG.
func TestMathRandOnlyForScheduling(t *testing.T) {
	allowed := map[string]bool{"route": true, "onion": true, "send": true}
	for _, path := range sourceFiles(t) {
		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		require.NoError(t, err, path)
		for _, imp := range node.Imports {
			if strings.Trim(imp.Path.Value, `"`) != "math/rand" {
				continue
			}
			pkg := strings.Split(filepath.ToSlash(path), "/")[0]
			assert.True(t, allowed[pkg], "%s imports math/rand", path)
		}
	}
}

// TestSecretPackagesUseCSPRNG checks the packages that create key material.
func TestSecretPackagesUseCSPRNG(t *testing.T) {
	for _, path := range []string{"nostr/keys.go", "cashu/wallet.go"} {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "github.com/go-i2p/crypto/rand", path)
	}
}

// TestConstantTimeMACComparison verifies that authentication tags are not
// compared with bytes.Equal.
func TestConstantTimeMACComparison(t *testing.T) {
	content, err := os.ReadFile("nip44/nip44.go")
	require.NoError(t, err)
	assert.Contains(t, string(content), "hmac.Equal")
	assert.NotContains(t, string(content), "bytes.Equal(mac")
}

// TestNoPanicsFromExternalInput lists panic calls outside the known startup
// and test-fixture paths.
func TestNoPanicsFromExternalInput(t *testing.T) {
	acceptable := []string{
		"util/home.go",     // no home directory at all
		"cashu/testing.go", // test mint key generation
	}
	for _, path := range sourceFiles(t) {
		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, nil, 0)
		require.NoError(t, err, path)
		ast.Inspect(node, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			if ident, ok := call.Fun.(*ast.Ident); ok && ident.Name == "panic" {
				slashed := filepath.ToSlash(path)
				known := false
				for _, a := range acceptable {
					known = known || slashed == a
				}
				assert.True(t, known, "panic call at %s", fset.Position(call.Pos()))
			}
			return true
		})
	}
}

// TestOversizedPlaintextRejected verifies the NIP-44 size bound is enforced
// before encryption.
func TestOversizedPlaintextRejected(t *testing.T) {
	content, err := os.ReadFile("nip44/nip44.go")
	require.NoError(t, err)
	assert.Contains(t, string(content), "maxPlaintext")
}
