// Package markdown extracts KQL queries from fenced code blocks in
// Markdown documents.
package markdown
