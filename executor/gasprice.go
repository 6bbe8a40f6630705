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

package executor

import (
	"math/big"
	"time"
)

// gasPriceWindow is the rolling window of suggested gas-price observations
// the Executor's gas-price refresh task keeps: min_executable_gas_price is
// derived as the *minimum* of the window, not its latest sample or average,
// so a single brief price spike does not raise the floor.
type gasPriceWindow struct {
	span    time.Duration
	samples []gasPriceSample
}

type gasPriceSample struct {
	price *big.Int
	at    time.Time
}

func newGasPriceWindow(span time.Duration) *gasPriceWindow {
	return &gasPriceWindow{span: span}
}

// Add records a new observation at `now` and returns the minimum price
// still within the window.
func (w *gasPriceWindow) Add(price *big.Int, now time.Time) *big.Int {
	w.samples = append(w.samples, gasPriceSample{price: price, at: now})
	cutoff := now.Add(-w.span)
	kept := w.samples[:0]
	for _, s := range w.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	w.samples = kept

	min := w.samples[0].price
	for _, s := range w.samples[1:] {
		if s.price.Cmp(min) < 0 {
			min = s.price
		}
	}
	return min
}
