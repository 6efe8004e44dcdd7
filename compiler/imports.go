package compiler

import (
	"fmt"
	"path/filepath"

	"github.com/skyelang/skyec/ast"
)

// ResolveImportPath turns an import statement's written path into the file
// path the frontend (or the C include emission) should use, per the three
// branches of spec §4.4.2 Import: `<<path>>` resolves against the Skye lib
// directory, a relative path against the importing source file's own
// directory, and an absolute path stands alone. Pure path algebra — fetching
// and parsing stay with the Frontend collaborator.
func ResolveImportPath(kind ast.ImportKind, path, sourceDir, libDir string) (string, error) {
	switch kind {
	case ast.ImportLib:
		if libDir == "" {
			return "", fmt.Errorf("no library directory configured for <<%s>>", path)
		}
		return filepath.Join(libDir, path), nil
	case ast.ImportRelative:
		if sourceDir == "" {
			return path, nil
		}
		return filepath.Join(sourceDir, path), nil
	case ast.ImportAbsolute:
		if !filepath.IsAbs(path) {
			return "", fmt.Errorf("import path %q is not absolute", path)
		}
		return path, nil
	default:
		return "", fmt.Errorf("unknown import kind")
	}
}
