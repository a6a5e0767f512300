// Package wikitext parses the subset of MediaWiki markup the bot edits:
// headings, internal links, templates, comments and raw extension tags.
//
// The parser is lossless. Parse(s).String() == s for any input, and edits
// made through the node API only change the bytes of the nodes touched.
package wikitext
