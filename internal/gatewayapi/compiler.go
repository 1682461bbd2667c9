package gatewayapi

import (
	"context"
	"fmt"
	"strings"

	"forgeline/internal/repair"
	"forgeline/internal/sandbox"
	"forgeline/internal/staged"
)

const defaultCompileCmd = "npx tsc --noEmit --pretty false"

// sandboxCompiler runs the project's no-emit type check inside a
// sandbox: stage the files, run the compiler, hand back its stdout for
// diagnostic parsing. A non-zero exit is the normal dirty-check outcome,
// not an error.
func sandboxCompiler(sb sandbox.Sandbox, cmd string) repair.CompilerFunc {
	if cmd == "" {
		cmd = defaultCompileCmd
	}
	return func(ctx context.Context, files *staged.FileSet) (string, error) {
		for _, p := range files.Paths() {
			if i := strings.LastIndexByte(p, '/'); i > 0 {
				if err := sb.CreateFolder(ctx, p[:i]); err != nil {
					return "", fmt.Errorf("compile stage mkdir %s: %w", p[:i], err)
				}
			}
			c, _ := files.Get(p)
			if err := sb.UploadFile(ctx, p, []byte(c)); err != nil {
				return "", fmt.Errorf("compile stage upload %s: %w", p, err)
			}
		}
		res, err := sb.RunCommand(ctx, cmd)
		if err != nil {
			return "", fmt.Errorf("run %q: %w", cmd, err)
		}
		return res.Stdout, nil
	}
}
