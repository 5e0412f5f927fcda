// Package export writes run artifacts: the step trace and the elimination
// ledger as CSV, JSON or Mangle facts.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"collapse/internal/collapse"
	"collapse/internal/logging"
)

// Format names an artifact encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatMangle Format = "mangle"
)

// ReasonSeparator joins reason tags inside a single CSV or fact field.
const ReasonSeparator = ";"

// ParseFormats converts config strings to formats.
func ParseFormats(names []string) ([]Format, error) {
	out := make([]Format, 0, len(names))
	for _, n := range names {
		switch f := Format(strings.ToLower(strings.TrimSpace(n))); f {
		case FormatCSV, FormatJSON, FormatMangle:
			out = append(out, f)
		default:
			return nil, fmt.Errorf("unsupported export format: %s", n)
		}
	}
	return out, nil
}

// EliminatedDetail is one eliminated token in a trace JSON row.
type EliminatedDetail struct {
	Token   string   `json:"token"`
	Reasons []string `json:"reasons"`
}

// TraceStep is the JSON form of a trace row.
type TraceStep struct {
	Step       int                `json:"step"`
	Candidates []string           `json:"candidates"`
	Survivors  []string           `json:"survivors"`
	Eliminated []EliminatedDetail `json:"eliminated"`
	Choice     string             `json:"choice"`
	Mode       collapse.Mode      `json:"mode"`
	Residual   float64            `json:"residual"`
}

// TraceSteps joins each trace row with the ledger rows of its step.
func TraceSteps(trace []collapse.TraceRow, ledger []collapse.LedgerEntry) []TraceStep {
	byStep := make(map[int][]EliminatedDetail)
	for _, e := range ledger {
		byStep[e.Step] = append(byStep[e.Step], EliminatedDetail{Token: e.Token, Reasons: e.Reasons})
	}
	out := make([]TraceStep, 0, len(trace))
	for _, row := range trace {
		elims := byStep[row.Step]
		if elims == nil {
			elims = []EliminatedDetail{}
		}
		out = append(out, TraceStep{
			Step:       row.Step,
			Candidates: row.Candidates,
			Survivors:  row.Survivors,
			Eliminated: elims,
			Choice:     row.Choice,
			Mode:       row.Mode,
			Residual:   row.Residual,
		})
	}
	return out
}

// WriteTraceCSV writes Step,Candidates,Survivors,Choice,Mode,Residual rows.
func WriteTraceCSV(w io.Writer, trace []collapse.TraceRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Step", "Candidates", "Survivors", "Choice", "Mode", "Residual"}); err != nil {
		return err
	}
	for _, row := range trace {
		rec := []string{
			strconv.Itoa(row.Step),
			strings.Join(row.Candidates, ", "),
			strings.Join(row.Survivors, ", "),
			row.Choice,
			string(row.Mode),
			strconv.FormatFloat(row.Residual, 'g', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLedgerCSV writes Step,Eliminated_Token,Reasons rows.
func WriteLedgerCSV(w io.Writer, ledger []collapse.LedgerEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Step", "Eliminated_Token", "Reasons"}); err != nil {
		return err
	}
	for _, e := range ledger {
		if err := cw.Write([]string{strconv.Itoa(e.Step), e.Token, strings.Join(e.Reasons, ReasonSeparator)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadLedgerCSV parses what WriteLedgerCSV produced.
func ReadLedgerCSV(r io.Reader) ([]collapse.LedgerEntry, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty ledger csv")
	}
	out := make([]collapse.LedgerEntry, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != 3 {
			return nil, fmt.Errorf("ledger csv line %d: want 3 fields, got %d", i+2, len(rec))
		}
		step, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("ledger csv line %d: %w", i+2, err)
		}
		var reasons []string
		if rec[2] != "" {
			reasons = strings.Split(rec[2], ReasonSeparator)
		}
		out = append(out, collapse.LedgerEntry{Step: step, Token: rec[1], Reasons: reasons})
	}
	return out, nil
}

// WriteTraceJSON writes the trace with per-step elimination detail.
func WriteTraceJSON(w io.Writer, trace []collapse.TraceRow, ledger []collapse.LedgerEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(TraceSteps(trace, ledger))
}

// WriteLedgerJSON writes the ledger as a JSON array.
func WriteLedgerJSON(w io.Writer, ledger []collapse.LedgerEntry) error {
	if ledger == nil {
		ledger = []collapse.LedgerEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ledger)
}

// LedgerDecl declares the eliminated/3 predicate for loading exported facts.
const LedgerDecl = "Decl eliminated(Step, Token, Reasons) bound [/number, /string, /string].\n"

// LedgerFact renders one ledger row as eliminated(Step, "token", "r;r").
func LedgerFact(e collapse.LedgerEntry) string {
	return fmt.Sprintf("eliminated(%d, %s, %s).", e.Step, strconv.Quote(e.Token), strconv.Quote(strings.Join(e.Reasons, ReasonSeparator)))
}

// WriteLedgerMangle writes one fact per ledger row.
func WriteLedgerMangle(w io.Writer, ledger []collapse.LedgerEntry) error {
	for _, e := range ledger {
		if _, err := fmt.Fprintln(w, LedgerFact(e)); err != nil {
			return err
		}
	}
	return nil
}

// WriteArtifacts writes trace.<ext> and ledger.<ext> into dir for each
// format and returns the paths written. Mangle output covers the ledger only.
func WriteArtifacts(dir string, run *collapse.Run, formats []Format) ([]string, error) {
	timer := logging.StartTimer(logging.CategoryExport, "WriteArtifacts")
	defer timer.Stop()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts dir: %w", err)
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	for _, format := range formats {
		var err error
		switch format {
		case FormatCSV:
			err = write("trace.csv", func(w io.Writer) error { return WriteTraceCSV(w, run.Trace) })
			if err == nil {
				err = write("ledger.csv", func(w io.Writer) error { return WriteLedgerCSV(w, run.Ledger) })
			}
		case FormatJSON:
			err = write("trace.json", func(w io.Writer) error { return WriteTraceJSON(w, run.Trace, run.Ledger) })
			if err == nil {
				err = write("ledger.json", func(w io.Writer) error { return WriteLedgerJSON(w, run.Ledger) })
			}
		case FormatMangle:
			err = write("ledger.mg", func(w io.Writer) error { return WriteLedgerMangle(w, run.Ledger) })
		default:
			err = fmt.Errorf("unsupported export format: %s", format)
		}
		if err != nil {
			logging.Get(logging.CategoryExport).Error("export %s failed: %v", format, err)
			return written, err
		}
	}

	logging.Export("run %s: wrote %d artifacts to %s", run.ID, len(written), dir)
	return written, nil
}
