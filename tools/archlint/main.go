// Command archlint enforces Zixiao's architecture-isolation rule:
// architecture-touching primitives live behind small typed APIs in arch/,
// selected at build time by GOARCH-suffixed filenames, never by runtime
// dispatch. The one bright line that rule draws unambiguously is inline
// assembly — a .s file is ISA-specific by construction, unlike a raw
// pointer cast (vm's identity-mapped ToPhys and the panic path's stack
// peek also use unsafe, legitimately, without touching any instruction
// set; see DESIGN.md) — so archlint loads the module with go/packages and
// flags any .s file in a package outside arch/.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
)

func main() {
	if err := run("./..."); err != nil {
		fmt.Fprintln(os.Stderr, "archlint:", err)
		os.Exit(1)
	}
}

func run(pattern string) error {
	cfg := &packages.Config{
		Mode:  packages.NeedName | packages.NeedFiles,
		Tests: false,
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return fmt.Errorf("loading packages: %w", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if isArchPackage(pkg.PkgPath) {
			continue
		}
		for _, f := range pkg.OtherFiles {
			if strings.HasSuffix(f, ".s") {
				violations = append(violations, fmt.Sprintf("%s: assembly file %s outside arch/", pkg.PkgPath, filepath.Base(f)))
			}
		}
	}

	if len(violations) > 0 {
		return fmt.Errorf("%d violation(s):\n%s", len(violations), strings.Join(violations, "\n"))
	}
	return nil
}

// isArchPackage reports whether pkgPath is (or is under) the arch/ tree,
// the one place architecture-touching primitives are allowed to live.
func isArchPackage(pkgPath string) bool {
	return pkgPath == "zixiao/arch" || strings.HasPrefix(pkgPath, "zixiao/arch/")
}
