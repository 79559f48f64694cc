package telegram

import "strings"

// messageLimit stays under Telegram's 4096 character cap.
const messageLimit = 4000

// splitMessage cuts s into chunks of at most limit runes. Cuts prefer a
// blank line, then a newline, then a space, as long as the chunk stays at
// least a third full. In HTML mode a cut never lands inside a tag or an
// entity such as &amp;.
func splitMessage(s string, limit int, html bool) []string {
	if limit <= 0 {
		limit = messageLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			end = softCut(rs, start, end, limit/3)
			if html {
				end = htmlSafeCut(rs, start, end)
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n "); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && (rs[start] == '\n' || rs[start] == ' ') {
			start++
		}
	}
	return out
}

// softCut moves end back to a natural boundary no earlier than start+floor.
func softCut(rs []rune, start, end, floor int) int {
	lo := start + floor
	for _, sep := range []string{"\n\n", "\n", " "} {
		sr := []rune(sep)
		for i := end - len(sr); i >= lo; i-- {
			if string(rs[i:i+len(sr)]) == sep {
				return i + len(sr)
			}
		}
	}
	return end
}

// htmlSafeCut moves end so rs[start:end] neither ends inside a tag or an
// entity nor leaves an element open (Telegram rejects unbalanced markup).
func htmlSafeCut(rs []rune, start, end int) int {
	for i := end - 1; i > start; i-- {
		if rs[i] == '>' || rs[i] == ';' {
			break
		}
		if rs[i] == '<' || rs[i] == '&' {
			end = i
			break
		}
	}

	var open []int
	for i := start; i < end; i++ {
		if rs[i] != '<' {
			continue
		}
		j := i + 1
		for j < end && rs[j] != '>' {
			j++
		}
		switch {
		case j >= end:
		case i+1 < end && rs[i+1] == '/':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		case rs[j-1] != '/':
			open = append(open, i)
		}
		i = j
	}
	if len(open) > 0 && open[0] > start {
		return open[0]
	}
	return end
}
