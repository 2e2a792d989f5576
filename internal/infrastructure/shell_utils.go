package infrastructure

import "strings"

// shellSpecialChars are the characters that force quoting
const shellSpecialChars = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// ShellQuote quotes a single word for a POSIX shell.
// Words without special characters are returned unchanged.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecialChars) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellJoin builds one shell command line from a binary and its arguments.
// It is used when a command must travel as a single string, e.g. through
// "su -c" or "adb shell".
func ShellJoin(binary string, args ...string) string {
	var b strings.Builder
	b.WriteString(ShellQuote(binary))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(ShellQuote(arg))
	}
	return b.String()
}
