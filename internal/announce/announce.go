// Package announce builds the spoken strings for focused elements.
//
// Elements without a custom announcement get the default "name, type, i of n"
// form. Custom announcements are templates with {tag} placeholders; a
// placeholder listing several tags, like {price,label}, is a fallback chain
// resolved against the OCR results only.
package announce

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Details carries everything a template can reference about a focused
// element. Index and Total are group-relative and 1-based.
type Details struct {
	Name     string
	Type     string
	Index    int
	Total    int
	Menu     string
	Submenu  string
	Group    string
	Template string
}

// chainPattern matches placeholders holding a comma, the fallback-chain form.
var chainPattern = regexp.MustCompile(`\{[^{}]*,[^{}]*\}`)

// Format renders the announcement for an element. ocr maps OCR region tags
// to their recognized text. Placeholders that resolve to nothing stay in the
// output verbatim; a template mistake should be audible, not fatal.
func Format(d Details, ocr map[string]string) string {
	if strings.TrimSpace(d.Template) == "" {
		return fmt.Sprintf("%s, %s, %d of %d", d.Name, d.Type, d.Index, d.Total)
	}

	out := chainPattern.ReplaceAllStringFunc(d.Template, func(match string) string {
		return resolveChain(match, ocr)
	})

	pairs := []string{
		"{name}", d.Name,
		"{type}", d.Type,
		"{index}", strconv.Itoa(d.Index),
		"{menu}", d.Menu,
		"{submenu}", d.Submenu,
		"{group}", d.Group,
	}
	for tag, text := range ocr {
		pairs = append(pairs, "{"+tag+"}", text)
	}
	return strings.NewReplacer(pairs...).Replace(out)
}

// resolveChain substitutes the first chain tag with non-empty OCR text.
// Chains consult the OCR results only; element fields never participate.
func resolveChain(match string, ocr map[string]string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(match, "{"), "}")
	for _, tag := range strings.Split(inner, ",") {
		if text := ocr[strings.TrimSpace(tag)]; text != "" {
			return text
		}
	}
	return ""
}
