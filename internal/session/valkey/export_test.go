package sessionvalkey

import (
	"testing"

	"github.com/valkey-io/valkey-go"
)

// SharedClient hands the container client started in TestMain to the
// external test package.
func SharedClient(t *testing.T) valkey.Client {
	t.Helper()
	return client
}
