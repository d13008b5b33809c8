package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPostgresDSN(t *testing.T) {
	assert.Equal(t, "postgres://postgres@localhost:5432/healthgeo?sslmode=disable",
		BuildPostgresDSN("", "", "", "", "", ""))
	assert.Equal(t, "postgres://geo:secret@db:6543/facilities?sslmode=require",
		BuildPostgresDSN("db", "6543", "geo", "secret", "facilities", "require"))
}

func TestOpenRedisWithoutAddr(t *testing.T) {
	assert.Nil(t, OpenRedis("", "", 0))
	c := OpenRedis("127.0.0.1:6379", "", -3)
	if assert.NotNil(t, c) {
		assert.Equal(t, 0, c.Options().DB)
		_ = c.Close()
	}
}

func TestGeoIPDisabled(t *testing.T) {
	g, err := OpenGeoIP("")
	assert.NoError(t, err)
	assert.Nil(t, g)
	_, _, ok := g.Locate("8.8.8.8")
	assert.False(t, ok)
	assert.NoError(t, g.Close())
}
