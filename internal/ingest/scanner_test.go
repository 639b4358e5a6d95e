package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestJobKeyDerivation(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/jobs/FolderA/JOB001.nc", "FolderA/JOB001"},
		{"/jobs/FolderA/Sub/JOB001.NC", "Sub/JOB001"},
		{"/jobs/MixedCase/MiXeD.nc", "MixedCase/MiXeD"},
	}
	for _, c := range cases {
		if got := JobKey(c.path); got != c.want {
			t.Errorf("JobKey(%s) = %s, want %s", c.path, got, c.want)
		}
	}

	long := "/jobs/" + strings.Repeat("f", 80) + "/" + strings.Repeat("b", 80) + ".nc"
	if got := JobKey(long); len(got) != 100 {
		t.Errorf("long key length = %d, want 100", len(got))
	}
}

func TestScannerFindsNcFilesWithSidecars(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "FolderA", "JOB001.nc"), "G0 X0 Y0")
	writeFile(t, filepath.Join(root, "FolderA", "JOB001.csv"),
		"material,parts,size,thickness\nMDF18,12,2800x2070,18.5\n")
	writeFile(t, filepath.Join(root, "FolderB", "JOB002.NC"), "G0")
	writeFile(t, filepath.Join(root, "FolderB", "notes.txt"), "not a job")

	s := &Scanner{Root: root}
	jobs, err := s.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("scanned %d jobs, want 2: %#v", len(jobs), jobs)
	}

	byKey := map[string]ScannedJob{}
	for _, j := range jobs {
		byKey[j.Key] = j
	}
	j1, ok := byKey["FolderA/JOB001"]
	if !ok {
		t.Fatalf("missing FolderA/JOB001 in %v", byKey)
	}
	if j1.Material != "MDF18" || j1.Parts != 12 || j1.Size != "2800x2070" || j1.Thickness != 18.5 {
		t.Fatalf("sidecar attributes not applied: %#v", j1)
	}
	if j2 := byKey["FolderB/JOB002"]; j2.NcFile != "JOB002" {
		t.Fatalf("uppercase extension not accepted: %#v", j2)
	}
}

func TestScannerSidecarPositionalFallback(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "FolderA", "JOB003.nc"), "G0")
	writeFile(t, filepath.Join(root, "FolderA", "JOB003.csv"), "18;4;2800x2070;19\n")

	s := &Scanner{Root: root}
	jobs, err := s.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("scanned %d jobs, want 1", len(jobs))
	}
	j := jobs[0]
	if j.Material != "18" || j.Parts != 4 || j.Size != "2800x2070" || j.Thickness != 19 {
		t.Fatalf("positional sidecar not applied: %#v", j)
	}
}

func TestScannerSkipsTestdataUnlessEnabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "FolderA", "JOB001.nc"), "G0")
	writeFile(t, filepath.Join(root, "testdata", "FIXTURE.nc"), "G0")

	s := &Scanner{Root: root}
	jobs, err := s.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("testdata subtree not skipped: %#v", jobs)
	}

	s.IncludeTestData = true
	jobs, err = s.Scan()
	if err != nil {
		t.Fatalf("scan with test data: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("test-data mode did not admit fixtures: %#v", jobs)
	}
}

func TestScannerMissingRootFails(t *testing.T) {
	s := &Scanner{Root: filepath.Join(t.TempDir(), "nope")}
	if _, err := s.Scan(); err == nil {
		t.Fatalf("expected error for missing root")
	}
}
