package dap

import (
	"fmt"
	"strconv"
	"strings"
)

// baseName returns the last element of path. Both separators are
// recognized, so that paths of a debuggee built on another platform
// display properly.
func baseName(path string) string {
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func formatAddress(addr uint64) string {
	return fmt.Sprintf("%#x", addr)
}

// parseAddress parses a memory reference as sent by the client.
func parseAddress(ref string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimSpace(ref), 0, 64)
	if err != nil {
		return 0, userErr(InvalidHandle, "invalid memory reference", "%q is not an address", ref)
	}
	return addr, nil
}

// clampRange returns the bounds of the page [start, start+count) of a list
// of n elements. count <= 0 means up to the end, capped at max when max is
// positive.
func clampRange(start, count, n, max int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if count <= 0 {
		count = n - start
		if max > 0 && count > max {
			count = max
		}
	}
	end := start + count
	if end > n || end < start {
		end = n
	}
	return start, end
}
