// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blockdev

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledDevice wraps a Device and bounds the rate of sector I/O,
// grounded on the token-bucket rate limiting the teacher repo applies to
// GCS object reads. Useful for simulating a slow disk in tests of the
// cache's write-back and read-ahead behavior.
type ThrottledDevice struct {
	inner   Device
	limiter *rate.Limiter
}

var _ Device = (*ThrottledDevice)(nil)

// NewThrottledDevice wraps inner with a limiter allowing sectorsPerSecond
// sector operations per second, with a burst of burst operations.
func NewThrottledDevice(inner Device, sectorsPerSecond float64, burst int) *ThrottledDevice {
	return &ThrottledDevice{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(sectorsPerSecond), burst),
	}
}

func (d *ThrottledDevice) ReadSector(n SectorNum, dst *Sector) error {
	if err := d.limiter.Wait(context.Background()); err != nil {
		return err
	}
	return d.inner.ReadSector(n, dst)
}

func (d *ThrottledDevice) WriteSector(n SectorNum, src *Sector) error {
	if err := d.limiter.Wait(context.Background()); err != nil {
		return err
	}
	return d.inner.WriteSector(n, src)
}

func (d *ThrottledDevice) SectorCount() SectorNum {
	return d.inner.SectorCount()
}
