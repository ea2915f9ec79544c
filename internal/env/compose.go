package env

import (
	"os"
	"strings"
)

// Snapshot captures the current process environment as a map. Call it
// before any resolution work when the composed environment should reflect
// the state at invocation time.
func Snapshot() map[string]string {
	environ := os.Environ()
	snap := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			snap[kv[:i]] = kv[i+1:]
		}
	}
	return snap
}

// Compose merges a base environment with a fragment and applies masking.
// Fragment variables overwrite base variables of the same name, then every
// masked name is removed no matter which side contributed it. base may be
// nil for a fragment-only environment. The inputs are not modified.
func Compose(base map[string]string, frag *Fragment, mask []string) map[string]string {
	size := len(base)
	if frag != nil {
		size += frag.Len()
	}
	out := make(map[string]string, size)
	for k, v := range base {
		out[k] = v
	}
	if frag != nil {
		for _, k := range frag.Keys() {
			v, _ := frag.Get(k)
			out[k] = v
		}
	}
	for _, m := range mask {
		delete(out, m)
	}
	return out
}
