package usage

import "fmt"

// FormatSeconds renders a duration as 1h02m03s, 2m05s or 45s.
func FormatSeconds(sec int) string {
	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -sec
	}

	h, m, s := sec/3600, sec%3600/60, sec%60
	switch {
	case h > 0:
		return fmt.Sprintf("%s%dh%02dm%02ds", sign, h, m, s)
	case m > 0:
		return fmt.Sprintf("%s%dm%02ds", sign, m, s)
	default:
		return fmt.Sprintf("%s%ds", sign, s)
	}
}
