package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.keploy.io/testengine/utils"
)

func TestSetVersion_Empty(t *testing.T) {
	originalVersion := version
	t.Cleanup(func() {
		version = originalVersion
		utils.Version = originalVersion
	})

	version = ""
	setVersion()

	assert.Equal(t, "1-dev", version)
	assert.Equal(t, "1-dev", utils.Version)
}

func TestSetVersion_Injected(t *testing.T) {
	originalVersion := version
	t.Cleanup(func() {
		version = originalVersion
		utils.Version = originalVersion
	})

	version = "1.4.2"
	setVersion()

	assert.Equal(t, "1.4.2", utils.Version)
}
