package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	DefaultPaper      = "a4"
	DefaultMargin     = 0.5
	DefaultPDFTimeout = 30 * time.Second

	// footerBand is the extra bottom margin, in inches, reserved for the
	// page footer.
	footerBand = 0.25
)

// PaperSize is a page size in inches.
type PaperSize struct {
	Width, Height float64
}

var papers = map[string]PaperSize{
	"a4":     {Width: 8.27, Height: 11.69},
	"letter": {Width: 8.5, Height: 11},
	"legal":  {Width: 8.5, Height: 14},
}

// Paper resolves a paper name such as "A4" or "letter". An empty name is
// the default paper.
func Paper(name string) (PaperSize, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultPaper
	}
	p, ok := papers[name]
	if !ok {
		return PaperSize{}, fmt.Errorf("unknown paper %q (want one of %s)", name, strings.Join(PaperNames(), ", "))
	}
	return p, nil
}

func PaperNames() []string {
	names := make([]string, 0, len(papers))
	for n := range papers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PDFOptions configures report printing. Zero values take the defaults;
// an empty ChromePath probes the usual Chromium install locations.
type PDFOptions struct {
	ChromePath string
	Paper      string
	Margin     float64
	Timeout    time.Duration
}

type PDFRenderer struct {
	chromePath string
	paper      PaperSize
	margin     float64
	timeout    time.Duration
}

func (o PDFOptions) Validate() error {
	paper, err := Paper(o.Paper)
	if err != nil {
		return err
	}
	if o.Margin < 0 || 2*o.Margin >= paper.Width {
		return fmt.Errorf("pdf margin %.2fin does not fit the page", o.Margin)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("pdf timeout must not be negative, got %s", o.Timeout)
	}
	return nil
}

func NewPDFRenderer(opts PDFOptions) (*PDFRenderer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	paper, _ := Paper(opts.Paper)
	r := &PDFRenderer{chromePath: opts.ChromePath, paper: paper, margin: opts.Margin, timeout: opts.Timeout}
	if r.chromePath == "" {
		r.chromePath = detectChromePath()
	}
	if r.margin == 0 {
		r.margin = DefaultMargin
	}
	if r.timeout <= 0 {
		r.timeout = DefaultPDFTimeout
	}
	return r, nil
}

// printParams lays out the page with a uniform margin and a footer carrying
// the report title and page numbers.
func (r *PDFRenderer) printParams() *page.PrintToPDFParams {
	footer := `<div style="width:100%;margin:0 0.4in;font-size:8px;color:#666;display:flex;justify-content:space-between;">` +
		`<span class="title"></span><span><span class="pageNumber"></span> / <span class="totalPages"></span></span></div>`
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<span></span>`).
		WithFooterTemplate(footer).
		WithPaperWidth(r.paper.Width).
		WithPaperHeight(r.paper.Height).
		WithMarginTop(r.margin).
		WithMarginBottom(r.margin + footerBand).
		WithMarginLeft(r.margin).
		WithMarginRight(r.margin)
}

// Render prints the markdown report to PDF with headless Chromium.
func (r *PDFRenderer) Render(ctx context.Context, title, markdown string) ([]byte, error) {
	htmlDoc, err := MarkdownToHTML(title, markdown)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.NoSandbox, chromedp.DisableGPU)
	if r.chromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.chromePath))
	}
	ctx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer allocCancel()
	ctx, taskCancel := chromedp.NewContext(ctx)
	defer taskCancel()

	var pdf []byte
	err = chromedp.Run(ctx,
		chromedp.Navigate("data:text/html;base64,"+base64.StdEncoding.EncodeToString([]byte(htmlDoc))),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = r.printParams().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

func detectChromePath() string {
	for _, p := range []string{"/usr/bin/chromium-browser", "/usr/bin/chromium", "/usr/bin/google-chrome"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
