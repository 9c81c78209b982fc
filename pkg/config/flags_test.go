package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/simforge/pkg/log"
)

func TestApplyLogFlagsSetsCategoryThreshold(t *testing.T) {
	err := ApplyLogFlags([]string{"batch.threshold=debug"})
	assert.NoError(t, err)
	logger := log.WithComponent("batch")
	assert.True(t, logger.GetLevel() <= 0) // debug
}

func TestApplyLogFlagsRejectsMalformedEntry(t *testing.T) {
	err := ApplyLogFlags([]string{"no-equals-sign"})
	assert.Error(t, err)
}

func TestApplyLogFlagsRejectsMissingThresholdSuffix(t *testing.T) {
	err := ApplyLogFlags([]string{"batch=debug"})
	assert.Error(t, err)
}

func TestApplyLogFlagsAppliesValidEntriesDespiteLaterError(t *testing.T) {
	err := ApplyLogFlags([]string{"mailbox.threshold=warn", "garbage"})
	assert.Error(t, err)
	logger := log.WithComponent("mailbox")
	assert.Equal(t, "warn", logger.GetLevel().String())
}
