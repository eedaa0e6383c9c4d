// Package parser reads Markdown files that carry YAML frontmatter and splits
// their body into headed sections. Scenario seed files are written in this
// format.
package parser

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// Document is a parsed Markdown file.
type Document struct {
	// Title is the text of the first level-1 heading.
	Title string
	// Body is everything after the frontmatter.
	Body     string
	Sections []Section
}

// Section is a heading and the text up to the next heading.
type Section struct {
	Level   int    // 1-6 for h1-h6
	Heading string // heading text without the leading #s
	Path    string // e.g. "# Upadek > ## Questions"
	Content string
	Line    int // 1-based line of the heading within Body
}

// Parse splits content into frontmatter and body. When meta is non-nil the
// frontmatter is decoded into it with yaml.v3. A document without
// frontmatter leaves meta untouched; malformed frontmatter is an error.
func Parse(content string, meta any) (*Document, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	front, body, hasFront := splitFrontmatter(content)
	if hasFront && meta != nil {
		if err := yaml.Unmarshal([]byte(front), meta); err != nil {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
	}

	doc := &Document{Body: body, Sections: parseSections(body)}
	for _, s := range doc.Sections {
		if s.Level == 1 {
			doc.Title = s.Heading
			break
		}
	}
	return doc, nil
}

// splitFrontmatter returns the YAML between an opening "---" line and the
// next "---" line.
func splitFrontmatter(content string) (front, body string, ok bool) {
	if !strings.HasPrefix(content, fence+"\n") {
		return "", content, false
	}
	rest := content[len(fence)+1:]
	if strings.HasPrefix(rest, fence+"\n") || rest == fence {
		return "", strings.TrimPrefix(rest[len(fence):], "\n"), true
	}
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return "", content, false
	}
	after := rest[end+1+len(fence):]
	if after != "" && after[0] != '\n' {
		// "---" must stand alone on its line
		return "", content, false
	}
	return rest[:end], strings.TrimPrefix(after, "\n"), true
}

// headingLevel reports the level of an ATX heading line, or 0.
func headingLevel(line string) (int, string) {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n == len(line) || (line[n] != ' ' && line[n] != '\t') {
		return 0, ""
	}
	text := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[n:]), "#"))
	if text == "" {
		return 0, ""
	}
	return n, text
}

func parseSections(body string) []Section {
	var (
		sections []Section
		open     *Section
		buf      strings.Builder
		path     []string
		levels   []int
		inCode   bool
	)

	flush := func() {
		if open != nil {
			open.Content = strings.TrimSpace(buf.String())
			sections = append(sections, *open)
			buf.Reset()
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
		}

		level, heading := 0, ""
		if !inCode {
			level, heading = headingLevel(line)
		}
		if level == 0 {
			if open != nil {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			continue
		}

		flush()
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			path, levels = path[:len(path)-1], levels[:len(levels)-1]
		}
		path = append(path, strings.Repeat("#", level)+" "+heading)
		levels = append(levels, level)
		open = &Section{Level: level, Heading: heading, Path: strings.Join(path, " > "), Line: lineNum}
	}
	flush()
	return sections
}

// Section returns the first section whose heading matches name, ignoring case.
func (d *Document) Section(name string) (Section, bool) {
	for _, s := range d.Sections {
		if strings.EqualFold(s.Heading, name) {
			return s, true
		}
	}
	return Section{}, false
}

var listItemRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.+)$`)

// ListItems returns the text of every bullet or numbered list item in
// content, in document order.
func ListItems(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		if m := listItemRe.FindStringSubmatch(line); len(m) > 1 {
			items = append(items, strings.TrimSpace(m[1]))
		}
	}
	return items
}
