package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const DefaultPromptTemplate = "Summarize the following emails:\n\n{{emails}}"

var (
	emailsPlaceholder = regexp.MustCompile(`\{\{\s*emails\s*\}\}`)
	countPlaceholder  = regexp.MustCompile(`\{\{\s*count\s*\}\}`)
)

// RenderEmails renders trigger records as a bulleted list, one line per record.
func RenderEmails(records []Record) string {
	if len(records) == 0 {
		return "- No unread emails"
	}
	lines := make([]string, 0, len(records))
	for i, r := range records {
		subject := r.Subject()
		if subject == "" {
			subject = "No subject"
		}
		lines = append(lines, fmt.Sprintf("- [%d] %s - %s", i+1, subject, r.Snippet()))
	}
	return strings.Join(lines, "\n")
}

// RenderPrompt substitutes the rendered records into template. When the
// template has no emails placeholder the list is appended after it.
func RenderPrompt(template string, records []Record) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	list := RenderEmails(records)

	out := countPlaceholder.ReplaceAllLiteralString(template, strconv.Itoa(len(records)))
	if !emailsPlaceholder.MatchString(out) {
		return out + "\n\nEmails:\n" + list
	}
	return emailsPlaceholder.ReplaceAllLiteralString(out, list)
}
