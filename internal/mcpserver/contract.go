package mcpserver

// AnnotationSyntax describes the comment forms the index recognises, so LLM
// consumers can write annotations that will be picked up.
const AnnotationSyntax = `# todotrail Annotation Syntax

An annotation is a source comment that starts with one of the configured
type keywords. The default types are TODO, FIXME, NOTE, HACK and XXX.

## Recognised forms

` + "```" + `
// TODO: plain line comment
# FIXME: hash comment (shell, Python, YAML)
-- NOTE: double-dash comment (SQL, Lua)
/* HACK: block comment on one line */
 * XXX: continuation line inside a block comment
// TODO(alice): explicit author in parentheses
// [ ] TODO: checkbox prefix is ignored
x := compute() // TODO: trailing comment after code
` + "```" + `

## Rules

1. **Keyword case** is ignored when matching; the record carries the configured spelling.
2. **One annotation per line.** The first recognised form wins.
3. **Author** is the text inside the parentheses right after the keyword. Without it the
   author is back-filled from version history when attribution is resolved.
4. **Body** is everything after the optional colon, trimmed. An empty body is stored as
   ` + "`" + `No description` + "`" + `.
5. **Escalation.** A body containing an urgent word (urgent, critical, important, asap,
   bug, error) is reported as FIXME. A body containing a temporary-solution phrase
   (temporary, temp, hack, workaround, quick fix) is reported as HACK. The literal
   keyword is kept in ` + "`" + `literal_type` + "`" + ` and the record is marked ` + "`" + `inferred` + "`" + `.
6. **Ordering.** Results are sorted FIXME/XXX first, then TODO, then everything else,
   and by file path and line within a tier.

## Age filters

- ` + "`" + `older-than-90-days` + "`" + `: only lines whose last change is at least 90 days old.
- ` + "`" + `newer-than-7-days` + "`" + `: lines changed within the last week, plus lines without history.
`
