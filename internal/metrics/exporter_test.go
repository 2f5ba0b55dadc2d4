package metrics

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewExporterRegistersCollectors(t *testing.T) {
	e, err := NewExporter("0", testLogger())
	require.NoError(t, err)
	assert.NotNil(t, e.GetMetrics())
}

func TestNewExporterIsolatedRegistries(t *testing.T) {
	// Each exporter owns its registry, so building two must not collide
	// on the runtime and process collectors.
	_, err := NewExporter("0", testLogger())
	require.NoError(t, err)
	_, err = NewExporter("0", testLogger())
	require.NoError(t, err)
}
