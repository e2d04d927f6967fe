package notify

import "strconv"

func itoa(n int) string { return strconv.Itoa(n) }

func recipients(sends []sent) []int64 {
	out := make([]int64, 0, len(sends))
	for _, s := range sends {
		out = append(out, s.to.ChatID)
	}
	return out
}
