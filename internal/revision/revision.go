// Package revision resolves the git revision a release was checked out at.
package revision

import (
	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// DefaultLength is the number of hex characters used for manifest lookups.
const DefaultLength = 10

// Short returns the first n hex characters of HEAD in the repository at
// repoPath. Parent directories are searched for the repository. n <= 0
// selects DefaultLength.
func Short(repoPath string, n int) (string, error) {
	if n <= 0 {
		n = DefaultLength
	}
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", errors.GitError("failed to open repository").WithCause(err).WithContext("path", repoPath).Build()
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.GitError("failed to resolve HEAD").WithCause(err).WithContext("path", repoPath).Build()
	}
	hash := head.Hash().String()
	if n > len(hash) {
		n = len(hash)
	}
	return hash[:n], nil
}
