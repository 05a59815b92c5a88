package result

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cloud-bulldozer/avap-bench/pkg/probe"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Exit statuses of the harness.
const (
	ExitPass = 0
	ExitFail = 1
)

// Specify Language specific case wrapper as global variable
var caser = cases.Title(language.English)

var printer = message.NewPrinter(language.English)

// Verdict is the throughput gate outcome.
type Verdict struct {
	Passed       bool    `json:"passed"`
	ThresholdRPS float64 `json:"thresholdRps"`
	ObservedRPS  float64 `json:"observedRps"`
}

// Evaluate compares the observed throughput against the budget. Meeting the
// budget exactly passes.
func Evaluate(r ThroughputReport, thresholdRPS float64) Verdict {
	return Verdict{
		Passed:       r.RequestsPerSecond >= thresholdRPS,
		ThresholdRPS: thresholdRPS,
		ObservedRPS:  r.RequestsPerSecond,
	}
}

// ExitCode maps the verdict to the process exit status.
func (v Verdict) ExitCode() int {
	if v.Passed {
		return ExitPass
	}
	return ExitFail
}

// Summary gathers everything shown at the end of a run.
type Summary struct {
	Throughput ThroughputReport
	Bulk       *probe.BulkTransferReport
	BulkErr    error
	Verdict    Verdict
}

// Method to init common table structure.
func initTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	return table
}

func ms(v float64) string {
	return fmt.Sprintf("%.3f ms", v)
}

// ShowThroughputResult renders the throughput and latency table.
func ShowThroughputResult(w io.Writer, r ThroughputReport) {
	fmt.Fprintf(w, "\n📊 %s\n", caser.String("throughput & latency results"))
	table := initTable(w, []string{"Metric", "Result"})
	table.Append([]string{"Throughput (RPS)", printer.Sprintf("%.2f req/sec", r.RequestsPerSecond)})
	table.Append([]string{"Successful Calls", printer.Sprintf("%d / %d", r.SuccessCount, r.Attempted)})
	table.Append([]string{"Failed Calls", strconv.Itoa(r.FailureCount)})
	table.Append([]string{"Batch Duration", fmt.Sprintf("%.3f s", r.TotalDurationSeconds)})
	table.Append([]string{"Avg Latency", ms(r.MeanLatencyMs)})
	table.Append([]string{"Min Latency", ms(r.MinLatencyMs)})
	table.Append([]string{"Max Latency", ms(r.MaxLatencyMs)})
	table.Append([]string{"P95 Latency", ms(r.P95LatencyMs)})
	table.Append([]string{"P99 Latency", ms(r.P99LatencyMs)})
	if len(r.Confidence) == 2 {
		table.Append([]string{"Avg 95% Confidence Interval", fmt.Sprintf("%.3f-%.3f ms", r.Confidence[0], r.Confidence[1])})
	}
	table.Render()
}

// ShowFailureBreakdown lists failed calls per status code, most frequent first.
func ShowFailureBreakdown(w io.Writer, r ThroughputReport) {
	if len(r.FailureCodes) == 0 {
		return
	}
	codes := make([]string, 0, len(r.FailureCodes))
	for c := range r.FailureCodes {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if r.FailureCodes[codes[i]] != r.FailureCodes[codes[j]] {
			return r.FailureCodes[codes[i]] > r.FailureCodes[codes[j]]
		}
		return codes[i] < codes[j]
	})
	table := initTable(w, []string{"Error Code", "Occurrences"})
	for _, c := range codes {
		table.Append([]string{c, strconv.Itoa(r.FailureCodes[c])})
	}
	table.Render()
}

// ShowBulkResult prints the one line bulk transfer summary.
func ShowBulkResult(w io.Writer, b *probe.BulkTransferReport, err error) {
	if err != nil {
		fmt.Fprintf(w, "\n📦 Sync: failed: %v\n", err)
		return
	}
	if b == nil {
		return
	}
	check := "framing"
	if b.SignatureCheck {
		check = "signed"
	}
	fmt.Fprintf(w, "\n📦 Sync: %d items | %.2f MB | %.3fs | %d/%d %s packages\n",
		b.ItemCount, b.Megabytes(), b.DurationSeconds, b.ValidPackages, b.ItemCount, check)
}

// ShowVerdict prints the pass/fail banner.
func ShowVerdict(w io.Writer, v Verdict) {
	fmt.Fprintf(w, "\n%s\n", strings.Repeat("=", 60))
	if v.Passed {
		fmt.Fprintf(w, "✨ PASS: Performance within budget (%.2f >= %.2f RPS)\n", v.ObservedRPS, v.ThresholdRPS)
		return
	}
	fmt.Fprintf(w, "😥 FAIL: Underperformance detected (%.2f < %.2f RPS)\n", v.ObservedRPS, v.ThresholdRPS)
}

// Show renders the full console report.
func Show(w io.Writer, s Summary) {
	ShowThroughputResult(w, s.Throughput)
	ShowFailureBreakdown(w, s.Throughput)
	ShowBulkResult(w, s.Bulk, s.BulkErr)
	ShowVerdict(w, s.Verdict)
}
