// Package ingest owns job creation: it walks the processed-jobs root,
// mirrors the NC files it finds into the jobs table, and prunes PENDING
// rows whose source file disappeared. It is the only component that
// inserts jobs; the lifecycle engine takes over from there.
package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nestlogic/floorwatch/internal/csvx"
)

// maxKeyLen matches the jobs.key column width.
const maxKeyLen = 100

// ScannedJob is one NC file found under the processed-jobs root, with the
// optional sidecar attributes merged in.
type ScannedJob struct {
	Key       string
	Folder    string
	NcFile    string
	Path      string
	Material  string
	Parts     int
	Size      string
	Thickness float64
}

// Scanner walks the processed-jobs root. IncludeTestData admits files under
// testdata subtrees, for the fixture-driven test mode.
type Scanner struct {
	Root            string
	IncludeTestData bool
}

// JobKey derives the stable key for an NC file: the file's parent folder
// leaf joined with the base name, original case preserved, truncated to the
// column width.
func JobKey(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	leaf := filepath.Base(filepath.Dir(path))
	key := leaf + "/" + base
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
	}
	return key
}

// Scan returns every nest-ready job on disk. Unreadable subtrees are
// skipped rather than failing the walk; the next tick retries.
func (s *Scanner) Scan() ([]ScannedJob, error) {
	if _, err := os.Stat(s.Root); err != nil {
		return nil, err
	}
	var out []ScannedJob
	err := filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if !s.IncludeTestData && strings.EqualFold(d.Name(), "testdata") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".nc") {
			return nil
		}
		job := ScannedJob{
			Key:    JobKey(path),
			Folder: filepath.Base(filepath.Dir(path)),
			NcFile: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Path:   path,
		}
		applySidecar(&job)
		out = append(out, job)
		return nil
	})
	return out, err
}

// Keys returns the set of job keys currently on disk.
func (s *Scanner) Keys() (map[string]struct{}, []string, error) {
	jobs, err := s.Scan()
	if err != nil {
		return nil, nil, err
	}
	set := make(map[string]struct{}, len(jobs))
	list := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if _, dup := set[j.Key]; dup {
			continue
		}
		set[j.Key] = struct{}{}
		list = append(list, j.Key)
	}
	return set, list, nil
}

// Sidecar column bindings. The nesting software emits a small CSV next to
// each NC file describing the sheet; header names drifted across versions.
var sidecarColumns = []struct {
	names    []string
	position int
	set      func(*ScannedJob, string)
}{
	{[]string{"material", "material_name", "matname"}, 0, func(j *ScannedJob, v string) { j.Material = v }},
	{[]string{"parts", "part_count", "qty", "count"}, 1, func(j *ScannedJob, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			j.Parts = n
		}
	}},
	{[]string{"size", "sheet_size", "dimensions"}, 2, func(j *ScannedJob, v string) { j.Size = v }},
	{[]string{"thickness", "thickness_mm"}, 3, func(j *ScannedJob, v string) {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); err == nil {
			j.Thickness = f
		}
	}},
}

// applySidecar merges <base>.csv attributes into the job when the sidecar
// exists and parses. Absence and malformed content are both tolerated.
func applySidecar(job *ScannedJob) {
	sidecar := strings.TrimSuffix(job.Path, filepath.Ext(job.Path)) + ".csv"
	raw, err := os.ReadFile(sidecar)
	if err != nil {
		return
	}
	doc, err := csvx.ParseDocument(raw)
	if err != nil || len(doc.Rows) == 0 {
		return
	}
	row := doc.Rows[0]
	for _, col := range sidecarColumns {
		idx := col.position
		if doc.Header != nil {
			idx = csvx.FindColumn(doc.Header, col.names...)
		}
		if v := csvx.Column(row, idx); v != "" {
			col.set(job, v)
		}
	}
}
