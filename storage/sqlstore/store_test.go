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

package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigSanitizeAppliesDefaults(t *testing.T) {
	cfg := Config{DSN: "user:pass@tcp(127.0.0.1:3306)/neon"}
	cfg.sanitize()
	assert.Equal(t, 32, cfg.MaxOpenConns)
	assert.Equal(t, 8, cfg.MaxIdleConns)
}

func TestConfigSanitizeKeepsExplicitValues(t *testing.T) {
	cfg := Config{DSN: "dsn", MaxOpenConns: 100, MaxIdleConns: 20}
	cfg.sanitize()
	assert.Equal(t, 100, cfg.MaxOpenConns)
	assert.Equal(t, 20, cfg.MaxIdleConns)
}
