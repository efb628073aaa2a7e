//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the manual Add/Done pattern that wg.Go replaces.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern").
		Suggest("$wg.Go(func() { $body })")
}

// TestingContext flags contexts in tests that are not cancelled when the test ends.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$fn(context.Background(), $*args)`,
		`$fn(context.TODO(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a background context")
}

// StdlibLogger flags the standard log package. Application code logs through
// internal/logger so records carry the module name and end up in the
// configured outputs.
func StdlibLogger(m dsl.Matcher) {
	m.Import("log")
	m.Match(
		`log.Print($*_)`,
		`log.Printf($*_)`,
		`log.Println($*_)`,
		`log.Fatal($*_)`,
		`log.Fatalf($*_)`,
	).
		Where(m.File().Imports("log") && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the package logger (GetLogger()) instead of the standard log package")
}

// StdlibErrorsNew flags ad-hoc errors in application packages. They lose the
// category that maps an error to an HTTP status.
func StdlibErrorsNew(m dsl.Matcher) {
	m.Import("errors")
	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") &&
			m.File().PkgPath.Matches(`/internal/`) &&
			!m.File().PkgPath.Matches(`/internal/(errors|logger)$`)).
		Report("use internal/errors: errors.NewStd for sentinels or the builder with a Category")
}

// UploadFilename flags client supplied file names reaching the filesystem.
// Uploads are stored under generated names by internal/media.
func UploadFilename(m dsl.Matcher) {
	m.Match(
		`filepath.Join($*_, $fh.Filename)`,
		`os.Create($fh.Filename)`,
		`os.WriteFile($fh.Filename, $*_)`,
	).
		Where(m["fh"].Type.Is("*multipart.FileHeader")).
		Report("do not use $fh.Filename as a path; save uploads through media.Store")
}

// UnboundedImageDecode flags image decoding outside the preprocess package,
// which is the only place that registers formats and rejects bad input with
// an invalid-image error.
func UnboundedImageDecode(m dsl.Matcher) {
	m.Match(`image.Decode($r)`, `image.DecodeConfig($r)`).
		Where(!m.File().PkgPath.Matches(`/internal/preprocess$`)).
		Report("decode uploads with preprocess.Decode instead of image.Decode")
}
