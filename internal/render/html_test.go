package render

import (
	"strings"
	"testing"
)

func TestMarkdownToHTMLRendersTablesAndHooks(t *testing.T) {
	report := "# Prior Art Search Report\n\n## Patents Reviewed\n\n| # | Patent |\n|---|---|\n| 1 | 123 |\n\n---\nSEARCH METADATA:\n- Query: q\n"
	out, err := MarkdownToHTML("Report <q>", report)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<table>") {
		t.Fatalf("expected GFM table, got %s", out)
	}
	if !strings.Contains(out, `data-page-break-before="true">Patents Reviewed`) {
		t.Fatalf("expected page break hook on patents table heading")
	}
	if !strings.Contains(out, "<title>Report &lt;q&gt;</title>") {
		t.Fatalf("expected escaped title")
	}
}

func TestApplyPrintLayoutHooksNoopWhenHeadingMissing(t *testing.T) {
	in := "<h2>1. Executive Summary</h2><p>x</p>"
	if out := applyPrintLayoutHooks(in); out != in {
		t.Fatalf("expected no change when heading absent, got: %s", out)
	}
}

func TestApplyPrintLayoutHooksMarksMetadataFooter(t *testing.T) {
	out := applyPrintLayoutHooks("<hr><p>SEARCH METADATA:\n- Query: q</p>")
	if !strings.Contains(out, `<p class="search-metadata">SEARCH METADATA:`) {
		t.Fatalf("expected metadata class, got: %s", out)
	}
}
