// Package lessonmd parses and reassembles the `##`-delimited markdown body
// that flows through Stage 6: Generate produces it,
// Self-Review inspects it, Section Regeneration and the executors (C7)
// replace individual sections within it, and Finalize renders it into a
// LessonContent.
package lessonmd

import (
	"fmt"
	"regexp"
	"strings"
)

// Section is one `##`-delimited block of a lesson's generated markdown.
type Section struct {
	ID    string
	Title string
	Body  string // excludes the "## Title" heading line itself
}

var headingRe = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

var slugNonWord = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a stable section id from a heading title: lowercase,
// non-alphanumeric runs collapsed to a single hyphen, trimmed.
func Slug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugNonWord.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Parse splits markdown into its intro block (everything before the first
// `##` heading, typically under a single `#` title) and its ordered `##`
// sections. Section ids are stable slugs of their titles; a duplicate title
// gets a numeric suffix so ids stay unique within one document.
func Parse(markdown string) (intro string, sections []Section) {
	locs := headingRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(locs) == 0 {
		return strings.TrimSpace(markdown), nil
	}

	intro = strings.TrimSpace(markdown[:locs[0][0]])

	seen := make(map[string]int)
	for i, loc := range locs {
		title := strings.TrimSpace(markdown[loc[2]:loc[3]])
		bodyStart := loc[1]
		bodyEnd := len(markdown)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		body := strings.Trim(markdown[bodyStart:bodyEnd], "\n")

		id := Slug(title)
		if id == "" {
			id = fmt.Sprintf("section-%d", i+1)
		}
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}

		sections = append(sections, Section{ID: id, Title: title, Body: body})
	}
	return intro, sections
}

// Render reassembles intro + sections into markdown, each section rendered
// as "## Title\n\nBody".
func Render(intro string, sections []Section) string {
	var sb strings.Builder
	if intro != "" {
		sb.WriteString(intro)
		sb.WriteString("\n\n")
	}
	for i, s := range sections {
		sb.WriteString("## ")
		sb.WriteString(s.Title)
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimRight(s.Body, "\n"))
		if i < len(sections)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// MergeSections replaces the bodies of the sections named in updates
// (keyed by section id) and reassembles the document. The set and order of
// `##` headings and the content of every section not named in updates are
// left unchanged. Unknown
// ids in updates are ignored rather than erroring, since a targeted
// refinement task may be racing a concurrent full regeneration.
func MergeSections(markdown string, updates map[string]string) string {
	intro, sections := Parse(markdown)
	for i, s := range sections {
		if newBody, ok := updates[s.ID]; ok {
			sections[i].Body = strings.TrimSpace(newBody)
		}
	}
	return Render(intro, sections)
}

// SectionByID returns the section with the given id, or false if absent.
func SectionByID(sections []Section, id string) (Section, bool) {
	for _, s := range sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// IDs returns the ordered list of section ids, used to compare heading sets
// across a regeneration for the preservation property.
func IDs(sections []Section) []string {
	ids := make([]string, len(sections))
	for i, s := range sections {
		ids[i] = s.ID
	}
	return ids
}
