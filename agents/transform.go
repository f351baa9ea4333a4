package agents

import (
	"fmt"
	"strings"
)

// Transform modes shared by the echo and batch agents.
const (
	ModeIdentity = "identity"
	ModeUpper    = "upper"
	ModeLower    = "lower"
	ModeReverse  = "reverse"
)

func transformFunc(mode string) (func(string) string, error) {
	switch mode {
	case "", ModeIdentity:
		return func(s string) string { return s }, nil
	case ModeUpper:
		return strings.ToUpper, nil
	case ModeLower:
		return strings.ToLower, nil
	case ModeReverse:
		return reverse, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
