package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/roach88/insight/internal/ir"
	"github.com/roach88/insight/internal/schema"
)

// CoursesDir is the archive directory that holds course files.
const CoursesDir = "courses/"

// OverallYear replaces the year of "overall" sections, which aggregate
// every offering of a course.
const OverallYear = 1900

// sectionFields maps raw course-file keys onto sections fields.
var sectionFields = []struct {
	raw, field string
	numeric    bool
}{
	{"id", "uuid", false},
	{"Course", "id", false},
	{"Title", "title", false},
	{"Professor", "instructor", false},
	{"Subject", "dept", false},
	{"Year", "year", true},
	{"Avg", "avg", true},
	{"Pass", "pass", true},
	{"Fail", "fail", true},
	{"Audit", "audit", true},
}

type courseFile struct {
	Result []map[string]any `json:"result"`
}

// Sections parses a course archive.
//
// Only files under courses/ are read. A file that is not a JSON object with
// a result array is skipped, as is every section missing one of the
// required keys. The archive is rejected when no section survives.
func (in *Ingester) Sections(ctx context.Context, datasetID string, r io.ReaderAt, size int64) ([]ir.Record, Report, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, Report{}, &Error{Kind: schema.KindSections, Source: "archive", Reason: "not a zip archive", Err: err}
	}

	var (
		rep     Report
		records []ir.Record
	)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isCourseFile(f.Name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		rep.Files++

		course, err := readCourse(f)
		if err != nil {
			in.logger.Debug("course file skipped", "file", f.Name, "error", err)
			rep.Skipped++
			continue
		}
		for i, raw := range course.Result {
			rec, err := sectionRecord(datasetID, raw)
			if err != nil {
				in.logger.Debug("section skipped", "file", f.Name, "index", i, "error", err)
				rep.Skipped++
				continue
			}
			records = append(records, rec)
		}
	}

	if rep.Files == 0 {
		return nil, rep, &Error{Kind: schema.KindSections, Source: "archive", Reason: "no files under " + CoursesDir}
	}
	in.logger.Info("sections parsed", "dataset", datasetID, "files", rep.Files, "sections", len(records), "skipped", rep.Skipped)
	return finish(schema.KindSections, "archive", records, rep)
}

func isCourseFile(name string) bool {
	if !strings.HasPrefix(name, CoursesDir) {
		return false
	}
	// Skip OS metadata such as courses/.DS_Store.
	return !strings.HasPrefix(path.Base(name), ".")
}

func readCourse(f *zip.File) (courseFile, error) {
	rc, err := f.Open()
	if err != nil {
		return courseFile{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return courseFile{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var course courseFile
	if err := dec.Decode(&course); err != nil {
		return courseFile{}, fmt.Errorf("parse course: %w", err)
	}
	if course.Result == nil {
		return courseFile{}, fmt.Errorf("parse course: missing result array")
	}
	return course, nil
}

func sectionRecord(datasetID string, raw map[string]any) (ir.Record, error) {
	fields := make(map[string]ir.Value, len(sectionFields))
	for _, sf := range sectionFields {
		v, ok := raw[sf.raw]
		if !ok || v == nil {
			return ir.Record{}, fmt.Errorf("missing key %q", sf.raw)
		}
		if sf.numeric {
			n, err := toNumber(v)
			if err != nil {
				return ir.Record{}, fmt.Errorf("key %q: %w", sf.raw, err)
			}
			fields[sf.field] = ir.Number(n)
			continue
		}
		s, err := toText(v)
		if err != nil {
			return ir.Record{}, fmt.Errorf("key %q: %w", sf.raw, err)
		}
		fields[sf.field] = ir.String(s)
	}

	if s, ok := raw["Section"].(string); ok && s == "overall" {
		fields["year"] = ir.Number(OverallYear)
	}
	return ir.Record{Dataset: datasetID, Fields: fields}, nil
}

// toNumber accepts JSON numbers and numeric strings ("2015").
func toNumber(v any) (float64, error) {
	switch val := v.(type) {
	case json.Number:
		return val.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// toText accepts strings and stringifies numbers, as course ids are numeric.
func toText(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	default:
		return "", fmt.Errorf("not a string: %T", v)
	}
}
