package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/lazywasm/wasm"
)

// parseArgs converts command line words into wasm values of the given
// types. Integers accept any base strconv understands ("0x10", "-3").
func parseArgs(types []wasm.ValType, words []string) ([]uint64, error) {
	if len(words) != len(types) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(types), len(words))
	}
	args := make([]uint64, len(types))
	for i, t := range types {
		v, err := parseValue(t, strings.TrimSpace(words[i]))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseValue(t wasm.ValType, s string) (uint64, error) {
	switch t {
	case wasm.ValI32:
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return uint64(uint32(int32(v))), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		return v, err
	case wasm.ValI64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return uint64(v), nil
		}
		return strconv.ParseUint(s, 0, 64)
	case wasm.ValF32:
		v, err := strconv.ParseFloat(s, 32)
		return uint64(math.Float32bits(float32(v))), err
	case wasm.ValF64:
		v, err := strconv.ParseFloat(s, 64)
		return math.Float64bits(v), err
	}
	return 0, fmt.Errorf("%s arguments are not supported", t)
}

func formatValue(t wasm.ValType, v uint64) string {
	switch t {
	case wasm.ValI32:
		return strconv.FormatInt(int64(int32(uint32(v))), 10)
	case wasm.ValI64:
		return strconv.FormatInt(int64(v), 10)
	case wasm.ValF32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(v))), 'g', -1, 32)
	case wasm.ValF64:
		return strconv.FormatFloat(math.Float64frombits(v), 'g', -1, 64)
	}
	return fmt.Sprintf("%s(%#x)", t, v)
}

func formatResults(types []wasm.ValType, res []uint64) string {
	parts := make([]string, len(res))
	for i, v := range res {
		parts[i] = formatValue(types[i], v)
	}
	return strings.Join(parts, " ")
}
