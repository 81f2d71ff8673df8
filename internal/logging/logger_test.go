package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew_LevelParsing(t *testing.T) {
	logger := New(Options{Level: "debug"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	// Unparseable levels fall back to info.
	logger = New(Options{Level: "verbose"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNew_FormatterByEnvironment(t *testing.T) {
	logger := New(Options{Level: "info", Environment: "production"})
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = New(Options{Level: "info", Environment: "development"})
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
