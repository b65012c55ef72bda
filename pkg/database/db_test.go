package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDSN(t *testing.T) {
	opts := Options{Host: "db", Port: "5432", User: "bb", Password: "pw", Name: "bottlebuddy"}
	assert.Equal(t, "host=db user=bb password=pw dbname=bottlebuddy port=5432 sslmode=disable", opts.DSN())

	opts.URL = "postgres://bb:pw@db:5432/bottlebuddy"
	assert.Equal(t, opts.URL, opts.DSN())
}
