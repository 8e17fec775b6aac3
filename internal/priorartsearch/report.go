package priorartsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	reportMaxTokens     = 4096
	reportTemperature   = 0.2
	inventoryAbstract   = 300
	inventoryClaimChars = 200
	highRiskScore       = 0.8
)

const reportSystemPrompt = "You are a senior patent analyst writing prior-art search reports for engineers and IP counsel. Base every statement on the patent inventory provided. Do not invent patents, claims, or assignees."

type ReportSynthesizer struct {
	llm     LLMCaller
	timeout time.Duration
	log     logrus.FieldLogger
	metrics *Metrics
	now     func() time.Time
}

func NewReportSynthesizer(llm LLMCaller, timeout time.Duration, log logrus.FieldLogger, metrics *Metrics) *ReportSynthesizer {
	if timeout <= 0 {
		timeout = 2 * DefaultLLMTimeout
	}
	return &ReportSynthesizer{llm: llm, timeout: timeout, log: orDiscard(log), metrics: metrics, now: time.Now}
}

// Generate renders the report for a finished search. An empty result set
// produces a fixed template without calling the model; otherwise exactly one
// model call writes the analysis body. The metadata footer is always built
// locally.
func (r *ReportSynthesizer) Generate(ctx context.Context, res SearchResult) (string, error) {
	var b strings.Builder
	buildHeader(&b, res)
	if len(res.Results) == 0 {
		buildNoResults(&b, res)
		buildFooter(&b, res, r.now())
		r.log.WithFields(logrus.Fields{"event": "report_no_results", "query": res.Query}).Info("no-results report generated")
		return b.String(), nil
	}

	inv := buildInventory(res.Results)
	prompt, err := buildReportPrompt(res, inv)
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	body, err := r.llm.Complete(callCtx, CompletionRequest{
		System:      reportSystemPrompt,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:   reportMaxTokens,
		Temperature: reportTemperature,
	})
	r.metrics.observeLLMCall("report", err)
	if err != nil {
		r.log.WithFields(logrus.Fields{"event": "report_llm_error", "class": classifyFailure(err), "elapsed_ms": time.Since(start).Milliseconds()}).WithError(err).Error("report call failed")
		return "", err
	}
	b.WriteString(strings.TrimSpace(stripCodeFences(body)))
	b.WriteString("\n\n")
	buildPatentTable(&b, res.Results)
	buildFooter(&b, res, r.now())
	r.log.WithFields(logrus.Fields{"event": "report_generated", "patents": len(inv), "elapsed_ms": time.Since(start).Milliseconds()}).Info("report generated")
	return b.String(), nil
}

type inventoryItem struct {
	PatentID        string   `json:"patent_id"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract"`
	Assignees       []string `json:"assignees"`
	Date            string   `json:"date,omitempty"`
	Relevance       float64  `json:"relevance"`
	RelevanceLevel  string   `json:"relevance_level"`
	ClaimsTotal     int      `json:"claims_total"`
	IndependentKeys []string `json:"independent_claims"`
}

func buildInventory(results []AnalyzedResult) []inventoryItem {
	n := min(len(results), ReportInventorySize)
	out := make([]inventoryItem, 0, n)
	for _, r := range results[:n] {
		item := inventoryItem{
			PatentID:        r.PatentID,
			Title:           r.Title,
			Abstract:        clampString(r.Abstract, inventoryAbstract),
			Assignees:       r.Assignees,
			Date:            r.Date,
			Relevance:       roundTo(r.RelevanceScore, 2),
			RelevanceLevel:  string(r.RelevanceLevel),
			ClaimsTotal:     len(r.Claims),
			IndependentKeys: []string{},
		}
		if len(item.Assignees) == 0 {
			item.Assignees = []string{"Unknown"}
		}
		for _, c := range r.Claims {
			if c.Type != ClaimIndependent {
				continue
			}
			item.IndependentKeys = append(item.IndependentKeys, fmt.Sprintf("Claim %s: %s", c.Number, clampString(c.Text, inventoryClaimChars)))
			if len(item.IndependentKeys) == MaxClaimSnippets {
				break
			}
		}
		out = append(out, item)
	}
	return out
}

func buildReportPrompt(res SearchResult, inv []inventoryItem) (string, error) {
	invJSON, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SEARCH QUERY: %s\n", res.Query)
	fmt.Fprintf(&b, "STRATEGIES RUN: %d\n", len(res.Strategies))
	fmt.Fprintf(&b, "RELEVANCE THRESHOLD: %.2f\n", res.Metadata.Threshold)
	fmt.Fprintf(&b, "PATENTS IN INVENTORY: %d of %d selected\n\n", len(inv), len(res.Results))
	b.WriteString("PATENT INVENTORY (JSON):\n")
	b.Write(invJSON)
	b.WriteString("\n\nWrite a markdown report with these level-2 sections, in order:\n")
	b.WriteString("## 1. Executive Summary\n## 2. Search Methodology\n## 3. Individual Patent Analysis\n## 4. Technology Analysis\n## 5. Risk Assessment\n## 6. Competitive Intelligence\n## 7. Claims Analysis\n## 8. Strategic Recommendations\n## 9. Conclusion and Next Steps\n\n")
	b.WriteString("In section 3 cover every inventory patent by id. In section 5 rate overall blocking risk as HIGH, MEDIUM, or LOW and name the patents driving it. Do not add a title line or a metadata section.\n")
	return b.String(), nil
}

func buildHeader(b *strings.Builder, res SearchResult) {
	fmt.Fprintf(b, "# Prior Art Search Report\n\n")
	fmt.Fprintf(b, "- Query: %s\n", safe(res.Query))
	if res.Metadata.Domain != "" {
		fmt.Fprintf(b, "- Domain: %s\n", res.Metadata.Domain)
	}
	fmt.Fprintf(b, "- Search date: %s\n\n", res.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(b, "%s\n\n", Disclaimer)
}

func buildNoResults(b *strings.Builder, res SearchResult) {
	fmt.Fprintf(b, "## Executive Summary\n\n")
	fmt.Fprintf(b, "No patents found matching the search criteria at relevance threshold %.2f. This could indicate:\n\n", res.Metadata.Threshold)
	b.WriteString("- The technology is new or emerging\n")
	b.WriteString("- Patents in this area use different terminology\n")
	b.WriteString("- The search query needs refinement\n\n")
	b.WriteString("## Suggested Refinements\n\n")
	b.WriteString("1. Try broader search terms\n")
	b.WriteString("2. Consider related technical concepts\n")
	b.WriteString("3. Search with different technical terminology\n")
	b.WriteString("4. Check pending applications, which this search does not cover\n\n")
}

func buildPatentTable(b *strings.Builder, results []AnalyzedResult) {
	fmt.Fprintf(b, "## Patents Reviewed\n\n")
	b.WriteString("| # | Patent | Title | Assignee | Score | Claims | Strategies |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i, r := range results {
		fmt.Fprintf(b, "| %d | [%s](%s) | %s | %s | %.2f | %d | %s |\n",
			i+1, r.PatentID, patentURL(r.PatentID), cell(r.Title), cell(firstOrUnknown(r.Assignees)),
			r.RelevanceScore, len(r.Claims), cell(strings.Join(r.MatchedStrategies, ", ")))
	}
	b.WriteString("\n")
}

// buildFooter depends only on the SearchResult and the generation time.
func buildFooter(b *strings.Builder, res SearchResult, generated time.Time) {
	analyzed := min(len(res.Results), ReportInventorySize)
	high := 0
	for _, r := range res.Results {
		if r.RelevanceScore > highRiskScore {
			high++
		}
	}
	b.WriteString("---\n")
	b.WriteString("SEARCH METADATA:\n")
	fmt.Fprintf(b, "- Query: %s\n", res.Query)
	fmt.Fprintf(b, "- Patents analyzed: %d\n", analyzed)
	fmt.Fprintf(b, "- Patents selected: %d\n", len(res.Results))
	fmt.Fprintf(b, "- Total patents found (before dedup): %d\n", res.TotalFound)
	fmt.Fprintf(b, "- Unique patents: %d\n", res.Metadata.UniqueCount)
	fmt.Fprintf(b, "- Strategies: %d\n", res.Metadata.StrategiesCount)
	fmt.Fprintf(b, "- Relevance threshold: %.2f\n", res.Metadata.Threshold)
	fmt.Fprintf(b, "- Average relevance: %.2f\n", averageRelevance(res.Results))
	fmt.Fprintf(b, "- High-risk patents: %d\n", high)
	fmt.Fprintf(b, "- Generated: %s\n", generated.UTC().Format(time.RFC3339))
}

func averageRelevance(results []AnalyzedResult) float64 {
	if len(results) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range results {
		total += r.RelevanceScore
	}
	return total / float64(len(results))
}

func roundTo(v float64, places int) float64 {
	p := 1.0
	for range places {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

func firstOrUnknown(items []string) string {
	if len(items) == 0 {
		return "Unknown"
	}
	return items[0]
}

func cell(s string) string {
	return strings.ReplaceAll(safe(s), "|", "\\|")
}

func patentURL(id string) string {
	return "https://patents.google.com/patent/US" + strings.TrimSpace(id)
}

func safe(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(none)"
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
