package render

import (
	"bytes"
	"fmt"
	"html"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const styleCSS = `
body{font-family:-apple-system,"Segoe UI",Helvetica,Arial,sans-serif;color:#1c1917;line-height:1.5;margin:0;padding:1.5rem;background:#fff;}
.report{max-width:1000px;margin:0 auto;}
h1{font-size:1.6rem;border-bottom:2px solid #92400e;padding-bottom:0.3rem;}
h2{font-size:1.2rem;margin-top:1.6rem;}
a{color:#1d4ed8;}
table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.8rem;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
hr{border:0;border-top:1px solid #d6d3d1;margin:1.5rem 0;}
p.search-metadata{font-family:ui-monospace,Menlo,monospace;font-size:0.75rem;color:#44403c;white-space:pre-wrap;}
h2[data-page-break-before="true"]{break-before:page;page-break-before:always;}
@media print{@page{size:auto;margin:12mm;} body{padding:0;}}
`

var (
	patentsReviewedRe = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Patents Reviewed\s*</h2>`)
	metadataRe        = regexp.MustCompile(`<p>SEARCH METADATA:`)
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToHTML converts a report to a standalone HTML document.
func MarkdownToHTML(title, markdown string) (string, error) {
	var content bytes.Buffer
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	body := applyPrintLayoutHooks(content.String())
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + styleCSS + "</style></head><body><main class='report'>" + body + "</main></body></html>", nil
}

func applyPrintLayoutHooks(contentHTML string) string {
	out := patentsReviewedRe.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">Patents Reviewed</h2>`)
	return metadataRe.ReplaceAllString(out, `<p class="search-metadata">SEARCH METADATA:`)
}
