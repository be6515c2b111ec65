package instance

import (
	"os"
	"strings"
)

// GetID returns the process instance identifier: EVCHARGE_INSTANCE_ID, then
// the platform dyno name, then "local".
func GetID() string {
	for _, key := range []string{"EVCHARGE_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
