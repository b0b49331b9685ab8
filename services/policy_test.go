package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cppla/we-api/services"
)

func TestValidEmailDomain(t *testing.T) {
	cases := []struct {
		email string
		want  bool
	}{
		{"sam@islander.tamucc.edu", true},
		{"Sam.Lee@ISLANDER.tamucc.edu", true},
		{"sam@tamucc.edu", false},
		{"sam@islander.tamucc.edu.evil.com", false},
		{"@islander.tamucc.edu", false},
		{"sam islander.tamucc.edu", false},
		{"sa m@islander.tamucc.edu", false},
		{"", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, services.ValidEmailDomain(c.email, testDomain), c.email)
	}
}

func TestValidPassword(t *testing.T) {
	cases := []struct {
		pw   string
		want bool
	}{
		{"Secret#123", true},
		{"Aa1#aaaa", true},
		{"Aa1#aaa", false},
		{"secret#123", false},
		{"SECRET#123", false},
		{"Secret#abc", false},
		{"Secret1234", false},
		{"Secret#12 3", false},
		{"Secret^123", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, services.ValidPassword(c.pw), c.pw)
	}
}

func TestValidUsernameAndColor(t *testing.T) {
	assert.True(t, services.ValidUsername("shaka_22"))
	assert.True(t, services.ValidUsername("a.b-c@d"))
	assert.False(t, services.ValidUsername("abc"))
	assert.False(t, services.ValidUsername("has space"))
	assert.False(t, services.ValidUsername("x123456789012345678901234567890123"))

	assert.True(t, services.ValidColor("#FF5733"))
	assert.True(t, services.ValidColor("#ff5733"))
	assert.False(t, services.ValidColor("FF5733"))
	assert.False(t, services.ValidColor("#FF573"))
	assert.False(t, services.ValidColor("#GG5733"))
}

func TestPageNormalize(t *testing.T) {
	p := services.Page{}.Normalize(fixedNow)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, services.DefaultPageLimit, p.Limit)
	assert.True(t, p.Snapshot.Equal(fixedNow.Truncate(time.Millisecond)))

	p = services.Page{Page: -3, Limit: 1000}.Normalize(fixedNow)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, services.MaxPageLimit, p.Limit)
}
