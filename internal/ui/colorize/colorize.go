// Package colorize highlights disassembly listings for the terminal.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"uelocate/internal/disasm"
)

// Disabled reports whether UELOCATE_NO_COLOR turns colouring off.
func Disabled() bool {
	return os.Getenv("UELOCATE_NO_COLOR") != ""
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks
func getAssemblyLexer() chroma.Lexer {
	// Try lexers in order of preference (ARM assembly first)
	candidates := []string{"armasm", "gas", "GAS", "Gas", "nasm"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getDisasmStyle returns the disassembly style with fallbacks
func getDisasmStyle() *chroma.Style {
	candidates := []string{"disasm-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeAssembly applies syntax highlighting to ARM assembly text.
func ColorizeAssembly(code string) (string, error) {
	if Disabled() {
		return code, nil
	}

	lexer := getAssemblyLexer()
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// Listing renders s with the address column in gray and the instruction
// at mark flagged with an arrow.
func Listing(s disasm.Stream, mark uint64) string {
	var b strings.Builder
	for _, in := range s {
		arrow := "  "
		if in.VA == mark {
			arrow = "->"
		}
		addr := fmt.Sprintf("%#x", in.VA)
		raw := fmt.Sprintf("%02x %02x %02x %02x", in.Raw[0], in.Raw[1], in.Raw[2], in.Raw[3])
		fmt.Fprintf(&b, "%s %s  %s  %s\n", arrow, gray(addr), gray(raw), instruction(in))
	}
	return b.String()
}

func instruction(in disasm.Inst) string {
	if in.Bad || Disabled() {
		return in.Text
	}
	out, err := ColorizeAssembly(in.Text)
	if err != nil {
		return in.Text
	}
	return strings.TrimRight(out, "\n")
}

func gray(s string) string {
	if Disabled() {
		return s
	}
	return fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", s)
}

// StripANSI removes ANSI escape sequences.
func StripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
		} else if inEscape {
			if r == 'm' {
				inEscape = false
			}
		} else {
			result.WriteRune(r)
		}
	}

	return result.String()
}
