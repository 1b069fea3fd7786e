// SPDX-License-Identifier: ice License 1.0

//go:build test

package cfg

import (
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/cockroachdb/errors"
)

func init() {
	mustInit(discoverApplicationConfigFiles()...)
}

// discoverApplicationConfigFiles collects every application.yaml reachable
// from the test process: the working directory and its parent (package-local
// overrides), the test binary's directory, and the module root resolved
// relative to this file. Later files override earlier ones.
func discoverApplicationConfigFiles() []string {
	var roots []string
	if wd, err := os.Getwd(); err == nil {
		roots = append(roots, wd, filepath.Dir(wd))
	}
	if bin, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(bin))
	}
	//nolint:dogsled // Only the caller's file path matters here.
	_, caller, _, _ := runtime.Caller(0)
	roots = append(roots, filepath.Join(filepath.Dir(caller), ".."))

	var files []string
	for _, root := range roots {
		for _, pattern := range []string{
			filepath.Join(root, ".testdata", "application.yaml"),
			filepath.Join(root, "application.yaml"),
		} {
			matches, err := filepath.Glob(pattern)
			if err != nil {
				log.Println(errors.Wrapf(err, "glob failed for [%v]", pattern))

				continue
			}
			files = append(files, matches...)
		}
	}

	return files
}
