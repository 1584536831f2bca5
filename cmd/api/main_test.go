package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"classtrack/internal/config"
)

func TestRedisRequired(t *testing.T) {
	cases := []struct {
		queue   string
		session string
		want    bool
	}{
		{"redis", "memory", true},
		{"redis", "redis", true},
		{"memory", "redis", true}, // session store alone still needs redis
		{"memory", "memory", false},
	}
	for _, tc := range cases {
		cfg := config.App{QueueBackend: tc.queue, SessionBackend: tc.session}
		assert.Equal(t, tc.want, redisRequired(cfg), "queue=%s session=%s", tc.queue, tc.session)
	}
}
