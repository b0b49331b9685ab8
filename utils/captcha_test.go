package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/we-api/testutil"
	"github.com/cppla/we-api/utils"
)

func TestCaptchaRedisStoreSingleUse(t *testing.T) {
	mr, rc := testutil.SetupRedis(t)
	c := utils.NewCaptcha(rc)

	id, img, err := c.Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(img, "data:image/png;base64,"))

	answer, err := mr.Get("captcha:" + id)
	require.NoError(t, err)
	require.Len(t, answer, 5)

	assert.False(t, c.Verify(id, ""))
	assert.True(t, c.Verify(id, answer))
	assert.False(t, c.Verify(id, answer), "answer must be consumed")
}

func TestCaptchaMemoryStoreRejectsWrongAnswer(t *testing.T) {
	c := utils.NewCaptcha(nil)
	id, _, err := c.Generate()
	require.NoError(t, err)
	assert.False(t, c.Verify(id, "not-digits"))
	assert.False(t, c.Verify("", "12345"))
}
