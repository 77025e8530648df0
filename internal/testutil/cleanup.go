// Package testutil provides fixture builders for examples and tests.
//
// Fixtures are written with the same libraries real producers use
// (parquet-go, hamba/avro, klauspost/compress) so readers are exercised
// against genuine files.
package testutil

import "os"

// RemoveAll removes the path and any children. Errors are ignored.
// Use for defer cleanup in examples and tests.
//
// Usage:
//
//	defer testutil.RemoveAll(tmpDir)
func RemoveAll(path string) { _ = os.RemoveAll(path) }
