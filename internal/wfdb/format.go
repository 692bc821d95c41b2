package wfdb

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// Storage formats understood by the decoder.
const (
	Format8   = 8   // 8-bit first differences
	Format16  = 16  // 16-bit two's complement, little-endian
	Format24  = 24  // 24-bit two's complement, little-endian
	Format32  = 32  // 32-bit two's complement, little-endian
	Format61  = 61  // 16-bit two's complement, big-endian
	Format80  = 80  // 8-bit offset binary
	Format160 = 160 // 16-bit offset binary
	Format212 = 212 // two 12-bit samples packed into three bytes
)

// invalidSample is the digital value marking a missing sample per format.
var invalidSample = map[int]int{
	Format8:   math.MinInt8,
	Format16:  math.MinInt16,
	Format24:  -1 << 23,
	Format32:  math.MinInt32,
	Format61:  math.MinInt16,
	Format80:  math.MinInt8,
	Format160: math.MinInt16,
	Format212: -1 << 11,
}

// Supported reports whether format can be decoded.
func Supported(format int) bool {
	_, ok := invalidSample[format]
	return ok
}

// Formats lists the supported storage formats in ascending order.
func Formats() []int {
	out := make([]int, 0, len(invalidSample))
	for f := range invalidSample {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// decode converts the bytes of one signal file into digital samples in file
// order (frame-major, nsig signals per frame). initial holds the starting
// value of each interleaved signal and is only used by Format8.
func decode(format int, data []byte, nsig int, initial []int) ([]int, error) {
	switch format {
	case Format8:
		out := make([]int, len(data))
		acc := make([]int, nsig)
		copy(acc, initial)
		for i, b := range data {
			k := i % nsig
			acc[k] += int(int8(b))
			out[i] = acc[k]
		}
		return out, nil

	case Format16:
		out := make([]int, len(data)/2)
		for i := range out {
			out[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
		}
		return out, nil

	case Format61:
		out := make([]int, len(data)/2)
		for i := range out {
			out[i] = int(int16(binary.BigEndian.Uint16(data[2*i:])))
		}
		return out, nil

	case Format80:
		out := make([]int, len(data))
		for i, b := range data {
			out[i] = int(b) - 128
		}
		return out, nil

	case Format160:
		out := make([]int, len(data)/2)
		for i := range out {
			out[i] = int(binary.LittleEndian.Uint16(data[2*i:])) - 32768
		}
		return out, nil

	case Format212:
		n := len(data) / 3 * 2
		if len(data)%3 == 2 {
			n++
		}
		out := make([]int, n)
		for i := 0; i < n; i++ {
			j := i / 2 * 3
			var v int
			if i%2 == 0 {
				v = int(data[j]) | int(data[j+1]&0x0f)<<8
			} else {
				v = int(data[j+2]) | int(data[j+1]&0xf0)<<4
			}
			if v >= 1<<11 {
				v -= 1 << 12
			}
			out[i] = v
		}
		return out, nil

	case Format24:
		out := make([]int, len(data)/3)
		for i := range out {
			b := data[3*i:]
			v := int(b[0]) | int(b[1])<<8 | int(b[2])<<16
			if v >= 1<<23 {
				v -= 1 << 24
			}
			out[i] = v
		}
		return out, nil

	case Format32:
		out := make([]int, len(data)/4)
		for i := range out {
			out[i] = int(int32(binary.LittleEndian.Uint32(data[4*i:])))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported storage format %d", format)
}
