package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"capsunlocked/internal/keys"
	"capsunlocked/internal/mapping"
)

// LineError reports a syntax problem in a text keymap.
type LineError struct {
	Line int
	Msg  string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("invalid config line %d: %s", e.Line, e.Msg)
}

func (e *LineError) Unwrap() error { return e.Err }

type section int

const (
	sectionNone section = iota
	sectionMaps
	sectionModifiers
)

var bracketGroup = regexp.MustCompile(`\[([^\]]*)\]`)

// osTokens maps OS filter tokens to GOOS values.
var osTokens = map[string]string{
	"MAC":     "darwin",
	"MACOS":   "darwin",
	"WIN":     "windows",
	"WINDOWS": "windows",
	"WIN32":   "windows",
	"WIN64":   "windows",
	"LINUX":   "linux",
}

// parsedRow is one mapping line after tokenizing, before validation.
type parsedRow struct {
	app  string
	mods []string
	src  string
	tgt  string
	skip bool
}

// ParseText reads the INI-style keymap syntax. goos selects which OS-filtered
// rows apply. Syntax errors abort with *LineError; cross-reference problems
// are collected into ValidationErrors.
func ParseText(r io.Reader, goos string) (*Keymap, error) {
	km := &Keymap{
		Table:     mapping.Table{},
		Modifiers: mapping.NewRegistry(),
	}

	var rows []rowRef
	cur := sectionNone
	lineNo := 0

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}

		if isSectionHeader(line) {
			switch strings.ToLower(strings.TrimSpace(line[1 : len(line)-1])) {
			case "modifiers":
				cur = sectionModifiers
				km.HasModifiersSection = true
			case "maps":
				cur = sectionMaps
			}
			continue
		}

		if cur == sectionModifiers {
			mod, err := keys.NormalizeKey(line)
			if err != nil {
				return nil, &LineError{Line: lineNo, Msg: "empty modifier token", Err: err}
			}
			km.Modifiers[mod] = struct{}{}
			continue
		}

		row, err := parseMappingLine(line, goos)
		if err != nil {
			var le *LineError
			if errors.As(err, &le) {
				le.Line = lineNo
			}
			return nil, err
		}
		if row.skip {
			continue
		}

		def := mapping.Definition{Source: row.src, Target: row.tgt, RequiredMods: row.mods}
		km.Table.Add(row.app, def)
		rows = append(rows, rowRef{app: row.app, def: def, line: lineNo})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keymap: %w", err)
	}

	return finish(km, rows)
}

// finish applies cross-reference validation and the empty-file fallback
// shared by both keymap syntaxes.
func finish(km *Keymap, rows []rowRef) (*Keymap, error) {
	if km.HasModifiersSection {
		if errs := validateRows(rows, km.Modifiers); len(errs) > 0 {
			return nil, errs
		}
	}

	if km.Table.Count() == 0 {
		km.Table = mapping.DefaultTable()
		if len(km.Modifiers) == 0 {
			km.Modifiers = mapping.DefaultRegistry()
		}
		km.HasModifiersSection = true
		km.Defaults = true
	}
	return km, nil
}

// isSectionHeader reports whether line is exactly one bracket group.
func isSectionHeader(line string) bool {
	if line[0] != '[' {
		return false
	}
	end := strings.IndexByte(line, ']')
	return end >= 0 && strings.TrimSpace(line[end+1:]) == ""
}

func lineErr(format string, args ...any) error {
	return &LineError{Msg: fmt.Sprintf(format, args...)}
}

func parseMappingLine(line, goos string) (parsedRow, error) {
	if line[0] == '[' {
		return parseBracketLine(line, goos)
	}
	return parseFieldLine(line)
}

// parseBracketLine handles "[app] [mods... src] [tgt]" and
// "[app] [mods] [src] [tgt]".
func parseBracketLine(line, goos string) (parsedRow, error) {
	var groups []string
	for _, m := range bracketGroup.FindAllStringSubmatch(line, -1) {
		groups = append(groups, m[1])
	}

	var row parsedRow
	switch len(groups) {
	case 3:
		toks := strings.Fields(groups[1])
		if len(toks) == 0 {
			return row, lineErr("missing source key in second bracket")
		}
		row.src = toks[len(toks)-1]
		row.mods = toks[:len(toks)-1]
	case 4:
		row.mods = splitMods(groups[1])
		row.src = groups[2]
	default:
		return row, lineErr("expected '[app] [source] [target]', '[app] [mods source] [target]' or '[app] [mods] [source] [target]'")
	}

	app, skip, err := parseAppGroup(groups[0], goos)
	if err != nil || skip {
		return parsedRow{skip: skip}, err
	}
	row.app = app
	return normalizeRow(row, groups[len(groups)-1])
}

// parseFieldLine handles the whitespace form "app src tgt" and
// "app mods src tgt", where mods is "*" or "A+S".
func parseFieldLine(line string) (parsedRow, error) {
	f := strings.Fields(line)
	var row parsedRow
	switch len(f) {
	case 3:
		row.src = f[1]
	case 4:
		row.mods = splitMods(f[1])
		row.src = f[2]
	default:
		return row, lineErr("expected 'app source target' or 'app mods source target'")
	}

	if up := strings.ToUpper(f[0]); osTokens[up] != "" {
		return row, lineErr("OS filter %q needs the bracket form", f[0])
	}
	row.app = keys.NormalizeApp(f[0])
	return normalizeRow(row, f[len(f)-1])
}

// parseAppGroup splits an optional leading OS filter off the app group.
func parseAppGroup(group, goos string) (app string, skip bool, err error) {
	toks := strings.Fields(group)
	if len(toks) == 0 {
		return "", false, lineErr("empty app token")
	}
	if len(toks) >= 2 {
		if target, ok := osTokens[strings.ToUpper(toks[0])]; ok {
			if target != goos {
				return "", true, nil
			}
			toks = toks[1:]
		}
	}
	return keys.NormalizeApp(strings.Join(toks, "")), false, nil
}

func splitMods(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == keys.Wildcard {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ' ' || r == '\t'
	})
}

func normalizeRow(row parsedRow, target string) (parsedRow, error) {
	src, err := keys.NormalizeKey(row.src)
	if err != nil {
		return row, &LineError{Msg: "empty source key", Err: err}
	}
	row.src = src

	mods := make([]string, 0, len(row.mods))
	for _, m := range row.mods {
		n, err := keys.NormalizeKey(m)
		if err != nil {
			return row, &LineError{Msg: "empty modifier token", Err: err}
		}
		mods = append(mods, n)
	}
	row.mods = keys.ModifierList(mods)
	if len(row.mods) == 0 {
		row.mods = nil
	}

	tgt, err := keys.NormalizeTarget(target)
	if err != nil {
		return row, &LineError{Msg: "empty target", Err: err}
	}
	row.tgt = tgt
	return row, nil
}
