package bot

import (
	"errors"
	"path/filepath"
	"strings"

	errs "github.com/nk521/Complaint-Bot/pkg/errors"
)

const (
	maxDiagnosticRunes = 1900
	maxStackFrames     = 8
)

// FormatError renders err for a chat reply: the error text followed, for panics,
// by the innermost stack frames. Long output is truncated.
func FormatError(err error) string {
	var sb strings.Builder
	sb.WriteString(err.Error())

	var pe *errs.PanicError
	if errors.As(err, &pe) {
		if frames := stackExcerpt(pe.Stack); frames != "" {
			sb.WriteString("\n\n")
			sb.WriteString(frames)
		}
	}

	out := []rune(sb.String())
	if len(out) > maxDiagnosticRunes {
		return string(out[:maxDiagnosticRunes]) + "\n..."
	}
	return string(out)
}

// stackExcerpt keeps the frames below the panic call, with file paths shortened.
func stackExcerpt(stack []byte) string {
	lines := strings.Split(strings.TrimSpace(string(stack)), "\n")

	start := 1
	for i, line := range lines {
		if strings.HasPrefix(line, "panic(") {
			start = i + 2
			break
		}
	}
	if start >= len(lines) {
		return ""
	}

	var out []string
	for _, line := range lines[start:] {
		if strings.HasPrefix(line, "\t") {
			file := strings.TrimSpace(line)
			if i := strings.LastIndex(file, " +0x"); i >= 0 {
				file = file[:i]
			}
			out = append(out, "  "+filepath.Base(file))
			continue
		}
		if len(out)/2 >= maxStackFrames {
			break
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
