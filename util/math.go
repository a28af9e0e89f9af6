package util

import "math"

// AddUint64 溢出时返回 MaxUint64, false
func AddUint64(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return math.MaxUint64, false
	}
	return a + b, true
}

// AddTicks 把非负的有符号偏移加到无符号tick上
func AddTicks(now uint64, delta int64) (uint64, bool) {
	if delta < 0 {
		return now, false
	}
	return AddUint64(now, uint64(delta))
}
