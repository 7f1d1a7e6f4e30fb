package sysfs

import (
	"strings"

	"github.com/danwakefield/fnmatch"
)

// globMatch matches name against a shell pattern with fnmatch(3) semantics
// and no flags: '*' and '?' also match '/'.
func globMatch(pattern, name string) bool {
	return fnmatch.Match(bracketCompat(pattern), name, 0)
}

// bracketCompat rewrites the two bracket forms glibc accepts and the BSD
// matcher rejects: a ']' right after the opening bracket is a class member,
// and an unterminated '[' is a literal.
func bracketCompat(p string) string {
	if strings.IndexByte(p, '[') < 0 {
		return p
	}
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch {
		case c == '\\' && i+1 < len(p):
			b.WriteByte(c)
			b.WriteByte(p[i+1])
			i++
		case c == '[':
			j := i + 1
			if j < len(p) && (p[j] == '!' || p[j] == '^') {
				j++
			}
			lead := j < len(p) && p[j] == ']'
			if lead {
				j++
			}
			if strings.IndexByte(p[j:], ']') < 0 {
				b.WriteString(`\[`)
				continue
			}
			if !lead {
				b.WriteByte('[')
				continue
			}
			b.WriteString(p[i : j-1])
			b.WriteString(`\]`)
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
