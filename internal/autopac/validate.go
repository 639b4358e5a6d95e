package autopac

import (
	"bytes"
	"strconv"

	"github.com/nestlogic/floorwatch/internal/csvx"
	machinesrepo "github.com/nestlogic/floorwatch/internal/data/repos/machines"
	types "github.com/nestlogic/floorwatch/internal/domain"
)

// rejectKind classifies why a CSV failed validation. The watcher routes on
// it: a token mismatch is flagged globally, every other kind against the
// machine the file named.
type rejectKind int

const (
	rejectNone rejectKind = iota
	rejectEmpty
	rejectNoDelimiter
	rejectUnparseable
	rejectNoRows
	rejectNarrowRows
	rejectTokenMismatch
)

// validate checks the CSV shape before any job is touched: the file must be
// non-empty, delimited, carry at least one multi-column row, and name the
// machine it claims to report for. It returns the parsed rows and
// rejectNone on success.
func validate(raw []byte, machine *types.Machine) ([][]string, rejectKind, string) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, rejectEmpty, "file is empty"
	}
	if !bytes.ContainsAny(raw, ",;") {
		return nil, rejectNoDelimiter, "no delimited content"
	}

	rows, err := csvx.Parse(raw)
	if err != nil {
		return nil, rejectUnparseable, "unparseable CSV: " + err.Error()
	}
	if len(rows) == 0 {
		return nil, rejectNoRows, "no usable rows"
	}

	wide := false
	for _, row := range rows {
		if len(row) >= 2 {
			wide = true
			break
		}
	}
	if !wide {
		return nil, rejectNarrowRows, "no row has at least two columns"
	}

	if !tokenPresent(rows, machine) {
		return nil, rejectTokenMismatch, "machine token " + machine.Name + " not present in body"
	}
	return rows, rejectNone, ""
}

// tokenPresent looks for the machine's name or numeric id in any cell,
// comparing after case folding and non-alphanumeric stripping.
func tokenPresent(rows [][]string, machine *types.Machine) bool {
	name := machinesrepo.NormalizeToken(machine.Name)
	id := strconv.FormatInt(machine.ID, 10)
	for _, row := range rows {
		for _, cell := range row {
			folded := machinesrepo.NormalizeToken(cell)
			if folded == "" {
				continue
			}
			if folded == id || (name != "" && folded == name) {
				return true
			}
		}
	}
	return false
}

// extractNcBases pulls candidate NC base names from column 0, deduplicated
// in first-seen order. All-numeric names are valid programs.
func extractNcBases(rows [][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, row := range rows {
		cell := csvx.Column(row, 0)
		if cell == "" || !ncBaseRe.MatchString(cell) {
			continue
		}
		if _, dup := seen[cell]; dup {
			continue
		}
		seen[cell] = struct{}{}
		out = append(out, cell)
	}
	return out
}
