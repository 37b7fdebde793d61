package runtime

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// InstanceID identifies this process among replicas. It prefers the pod
// hostname and falls back to a random id.
func InstanceID() string {
	if v := strings.TrimSpace(os.Getenv("INSTANCE_ID")); v != "" {
		return v
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
