// Copyright 2023 The neon-proxy-go Authors
// This file is part of the neon-proxy-go library.
//
// The neon-proxy-go library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The neon-proxy-go library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the neon-proxy-go library. If not, see <http://www.gnu.org/licenses/>.

package stuckcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigSanitizeDefaultsTTL(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:6379"}
	cfg.sanitize()
	assert.Equal(t, time.Hour, cfg.TTL)
}

func TestConfigSanitizeKeepsExplicitTTL(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:6379", TTL: 5 * time.Minute}
	cfg.sanitize()
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}
