package runtime

import (
	"os"

	"github.com/spfs-io/spfs/spfserrors"
)

// activeRuntimeEnvVar names the environment variable a process inherits
// when it is running inside an active spfs environment.
const activeRuntimeEnvVar = "SPFS_RUNTIME"

// Active returns the runtime for the current process's environment, or
// NoActiveRuntimeError if SPFS_RUNTIME is unset.
func Active() (*Runtime, error) {
	path, ok := os.LookupEnv(activeRuntimeEnvVar)
	if !ok {
		return nil, spfserrors.NoActiveRuntimeError{}
	}
	return New(path)
}
