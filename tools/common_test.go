package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("RT_TEST_STR", "v")
	t.Setenv("RT_TEST_INT", "42")
	t.Setenv("RT_TEST_BAD_INT", "x")
	t.Setenv("RT_TEST_BOOL", "Yes")
	t.Setenv("RT_TEST_DUR", "1500ms")

	assert.Equal(t, "v", GetEnv("RT_TEST_STR", "d"))
	assert.Equal(t, "d", GetEnv("RT_TEST_MISSING", "d"))
	assert.Equal(t, 42, GetEnvInt("RT_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("RT_TEST_BAD_INT", 1))
	assert.True(t, GetEnvBool("RT_TEST_BOOL", false))
	assert.False(t, GetEnvBool("RT_TEST_MISSING", false))
	assert.Equal(t, 1500*time.Millisecond, GetEnvDuration("RT_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("RT_TEST_MISSING", time.Second))
}
