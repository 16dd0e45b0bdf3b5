package runtime

import "errors"

var defaultFactory func() Runtime

// RegisterDefault installs the production runtime binding. Called from the
// binding package's init; exactly one binding should be linked into a build.
func RegisterDefault(f func() Runtime) { defaultFactory = f }

// Default returns the registered runtime binding.
func Default() (Runtime, error) {
	if defaultFactory == nil {
		return nil, errors.New("no tensor runtime linked into this build")
	}
	return defaultFactory(), nil
}
