package vfs

import (
	"os"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"
)

// ListingFilter decides whether a real-backend entry is shown in listings.
// relPath has no leading slash. Returns true to keep the entry.
type ListingFilter func(relPath string, isDir bool) bool

// BuildListingFilter reads gitignore-style rules from ignoreFile at the handle root.
// Returns nil (no filtering) when ignoreFile is empty or absent. The ignore file itself
// is always hidden when present.
func BuildListingFilter(root billy.Filesystem, ignoreFile string) ListingFilter {
	if root == nil || ignoreFile == "" {
		return nil
	}
	data, err := util.ReadFile(root, ignoreFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("[REAL] failed to read %s: %v", ignoreFile, err)
		}
		return nil
	}

	lines := strings.Split(string(data), "\n")
	gi := ignore.CompileIgnoreLines(lines...)
	log.Debugf("[REAL] loaded %d ignore rules from %s", len(lines), ignoreFile)

	return func(relPath string, isDir bool) bool {
		if relPath == ignoreFile {
			return false
		}
		checkPath := relPath
		if isDir {
			checkPath = relPath + "/"
		}
		return !gi.MatchesPath(checkPath)
	}
}

// InstallIgnoreFile writes rules to ignoreFile at the handle root unless the file already exists.
func InstallIgnoreFile(root billy.Filesystem, ignoreFile string, rules []byte) error {
	if root == nil || ignoreFile == "" || len(rules) == 0 {
		return nil
	}
	if _, err := root.Stat(ignoreFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return util.WriteFile(root, ignoreFile, rules, 0644)
}
