package materialize

import "os"

// chown wraps os.Chown; split into its own file so platform-specific
// ownership handling has a single seam.
func chown(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}
