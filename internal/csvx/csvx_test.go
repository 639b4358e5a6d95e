package csvx

import (
	"reflect"
	"testing"
)

func TestDetectDelimiter_PrefersMostFrequentCandidate(t *testing.T) {
	if d := DetectDelimiter([]byte("a;b;c\n1;2;3\n")); d != ';' {
		t.Fatalf("expected ';' got %q", d)
	}
	if d := DetectDelimiter([]byte("a\tb\tc\n")); d != '\t' {
		t.Fatalf("expected tab got %q", d)
	}
	if d := DetectDelimiter([]byte("a,b,c\n")); d != ',' {
		t.Fatalf("expected ',' got %q", d)
	}
}

func TestDetectDelimiter_IgnoresQuotedDelimiters(t *testing.T) {
	// The semicolons live inside quotes; the one comma outside wins.
	if d := DetectDelimiter([]byte(`"a;b;c",x` + "\n")); d != ',' {
		t.Fatalf("expected ',' got %q", d)
	}
}

func TestDetectDelimiter_DefaultsToComma(t *testing.T) {
	if d := DetectDelimiter([]byte("singlecell\n")); d != ',' {
		t.Fatalf("expected ',' got %q", d)
	}
}

func TestParse_StripsBOMAndNormalizesLineEndings(t *testing.T) {
	data := []byte("\xEF\xBB\xBFname,count\rjob1,2\r\njob2,3\n")
	rows, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := [][]string{{"name", "count"}, {"job1", "2"}, {"job2", "3"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestParse_TrimsCellsAndDropsEmptyLines(t *testing.T) {
	rows, err := Parse([]byte("a , b \n\n , \nc,d\n"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := [][]string{{"a", "b"}, {"c", "d"}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestParse_QuotedFieldsWithEscapedQuotes(t *testing.T) {
	rows, err := Parse([]byte(`"he said ""go""",plain` + "\n"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != `he said "go"` || rows[0][1] != "plain" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestParse_QuotedCellContainingDelimiter(t *testing.T) {
	rows, err := Parse([]byte("\"a;b\";c\n"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "a;b" || rows[0][1] != "c" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	rows, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %#v", rows)
	}
}

func TestParseDocument_SplitsHeaderWhenCellHasLetter(t *testing.T) {
	doc, err := ParseDocument([]byte("Name,Count\njob1,2\n"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if doc.Header == nil || doc.Header[0] != "Name" {
		t.Fatalf("expected header, got %#v", doc.Header)
	}
	if len(doc.Rows) != 1 || doc.Rows[0][0] != "job1" {
		t.Fatalf("unexpected rows: %#v", doc.Rows)
	}
}

func TestParseDocument_AllNumericFirstRowIsData(t *testing.T) {
	doc, err := ParseDocument([]byte("1,2,3\n4,5,6\n"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if doc.Header != nil {
		t.Fatalf("expected no header, got %#v", doc.Header)
	}
	if len(doc.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %#v", doc.Rows)
	}
}

func TestFindColumn_CaseInsensitiveSynonyms(t *testing.T) {
	header := []string{"Type_Data", "Customer ID", "Length_MM"}
	if idx := FindColumn(header, "type_data", "type"); idx != 0 {
		t.Fatalf("expected 0 got %d", idx)
	}
	if idx := FindColumn(header, "customer_id", "customer id"); idx != 1 {
		t.Fatalf("expected 1 got %d", idx)
	}
	if idx := FindColumn(header, "width_mm", "width"); idx != -1 {
		t.Fatalf("expected -1 got %d", idx)
	}
}

func TestColumn_OutOfRangeIsEmpty(t *testing.T) {
	row := []string{"a"}
	if got := Column(row, 0); got != "a" {
		t.Fatalf("expected a got %q", got)
	}
	if got := Column(row, 5); got != "" {
		t.Fatalf("expected empty got %q", got)
	}
	if got := Column(row, -1); got != "" {
		t.Fatalf("expected empty got %q", got)
	}
}

func TestWrite_QuotesAndTrailingNewline(t *testing.T) {
	out := Write([][]string{{"plain", `has "quote"`, "has,comma"}})
	want := "plain,\"has \"\"quote\"\"\",\"has,comma\"\n"
	if string(out) != want {
		t.Fatalf("unexpected output: %q", string(out))
	}
}

func TestWrite_ThenParse_RoundTrips(t *testing.T) {
	rows := [][]string{
		{"job1", "MDF 18mm", "12"},
		{"job2", `label "A"`, "3,5"},
	}
	got, err := Parse(Write(rows))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}
