package sdk

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/roost/sdk/sdktest"
)

const testAPIKey = "ik_test"

// newTestClient starts a mock server and a client pointed at it. Both are
// closed when the test ends.
func newTestClient(t *testing.T, configure ...func(*Config)) (*Client, *sdktest.MockServer) {
	t.Helper()
	server := sdktest.NewMockServer()
	t.Cleanup(server.Close)

	config := DefaultConfig().
		WithBaseURL(server.URL).
		WithAPIKey(testAPIKey).
		WithLogger(discardLogger())
	for _, fn := range configure {
		fn(config)
	}

	client, err := NewClient(config)
	require.NoError(t, err, "Failed to create client")
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
