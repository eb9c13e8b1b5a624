package git

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	fsb "github.com/canoup/canoup/fs/billy"
)

var testIdentity = Signature{
	Name:  "Test Runner",
	Email: "runner@example.com",
	When:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

// testRepo bundles an in-memory mirror with the filesystem it lives in.
type testRepo struct {
	repo *Repo
	fs   *fsb.FS
	ctx  context.Context

	// clock advances with every commit so history has a stable order.
	clock time.Time
}

// setupTestRepo initializes an empty non-bare repository in memory. HEAD
// points at the unborn master branch.
func setupTestRepo(t *testing.T) *testRepo {
	t.Helper()

	// Keep the developer's ~/.gitconfig out of commit signatures.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	memFS := fsb.NewInMemoryFS()
	repo, err := Init(context.Background(), &Options{
		FS:       memFS,
		Identity: testIdentity,
	})
	require.NoError(t, err, "failed to initialize test repository")

	return &testRepo{
		repo:  repo,
		fs:    memFS,
		ctx:   context.Background(),
		clock: testIdentity.When,
	}
}

// commit stores a commit holding exactly files, without touching any ref
// or the working tree.
func (tr *testRepo) commit(t *testing.T, msg string, files map[string]string, parents ...plumbing.Hash) plumbing.Hash {
	t.Helper()
	return tr.commitWithModes(t, msg, files, nil, parents...)
}

// commitWithModes is commit with explicit modes; paths missing from modes
// are regular files.
func (tr *testRepo) commitWithModes(t *testing.T, msg string, files map[string]string, modes map[string]filemode.FileMode, parents ...plumbing.Hash) plumbing.Hash {
	t.Helper()

	entries := make(map[string]*treeEntry, len(files))
	for p, content := range files {
		hash, err := tr.repo.writeBlob([]byte(content))
		require.NoError(t, err)
		mode, ok := modes[p]
		if !ok {
			mode = filemode.Regular
		}
		entries[p] = &treeEntry{Hash: hash, Mode: mode}
	}

	treeHash, err := tr.repo.writeTree(entries)
	require.NoError(t, err)

	tr.clock = tr.clock.Add(time.Minute)
	sig := object.Signature{Name: "Upstream Dev", Email: "dev@example.com", When: tr.clock}
	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      msg + "\n",
		TreeHash:     treeHash,
		ParentHashes: parents,
	}

	obj := tr.repo.repo.Storer.NewEncodedObject()
	require.NoError(t, c.Encode(obj))
	hash, err := tr.repo.repo.Storer.SetEncodedObject(obj)
	require.NoError(t, err)
	return hash
}

// checkout points branch and HEAD at hash and force checks out the tree.
func (tr *testRepo) checkout(t *testing.T, branch string, hash plumbing.Hash) {
	t.Helper()

	refName := plumbing.NewBranchReferenceName(branch)
	require.NoError(t, tr.repo.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash)))
	require.NoError(t, tr.repo.setHead(refName))
	require.NoError(t, tr.repo.worktree.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}))
}

// setRemoteBranch creates refs/remotes/<remote>/<branch> at hash as a fetch would.
func (tr *testRepo) setRemoteBranch(t *testing.T, remote, branch string, hash plumbing.Hash) {
	t.Helper()

	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(remote, branch), hash)
	require.NoError(t, tr.repo.repo.Storer.SetReference(ref))
}

func (tr *testRepo) branchHash(t *testing.T, branch string) plumbing.Hash {
	t.Helper()

	ref, err := tr.repo.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err, "branch should exist: %s", branch)
	return ref.Hash()
}

func (tr *testRepo) readFile(t *testing.T, p string) string {
	t.Helper()

	content, err := tr.fs.ReadFile(p)
	require.NoError(t, err)
	return string(content)
}

func (tr *testRepo) fileExists(t *testing.T, p string) bool {
	t.Helper()

	ok, err := tr.fs.Exists(p)
	require.NoError(t, err)
	return ok
}

// gitFile reads a file from the .git directory.
func (tr *testRepo) gitFile(t *testing.T, name string) string {
	t.Helper()

	content, err := tr.fs.ReadFile(".git/" + name)
	require.NoError(t, err)
	return string(content)
}

// reflogLines returns the reflog of ref, one entry per line.
func (tr *testRepo) reflogLines(t *testing.T, ref string) []string {
	t.Helper()

	return strings.Split(strings.TrimSuffix(tr.gitFile(t, "logs/"+ref), "\n"), "\n")
}

// commitFilesAt returns the path→content map of a stored commit.
func (tr *testRepo) commitFilesAt(t *testing.T, hash plumbing.Hash) map[string]string {
	t.Helper()

	c, err := tr.repo.repo.CommitObject(hash)
	require.NoError(t, err)
	entries, err := commitFiles(c)
	require.NoError(t, err)

	files := make(map[string]string, len(entries))
	for p, e := range entries {
		content, err := tr.repo.readBlob(e.Hash)
		require.NoError(t, err)
		files[p] = string(content)
	}
	return files
}

// modesAt returns the path→mode map of a stored commit.
func (tr *testRepo) modesAt(t *testing.T, hash plumbing.Hash) map[string]filemode.FileMode {
	t.Helper()

	c, err := tr.repo.repo.CommitObject(hash)
	require.NoError(t, err)
	entries, err := commitFiles(c)
	require.NoError(t, err)

	modes := make(map[string]filemode.FileMode, len(entries))
	for p, e := range entries {
		modes[p] = e.Mode
	}
	return modes
}

// diverged builds base, a local commit checked out on master and an
// upstream commit, both children of base.
func (tr *testRepo) diverged(t *testing.T, base, ours, theirs map[string]string) (b, o, th plumbing.Hash) {
	t.Helper()

	b = tr.commit(t, "base", base)
	o = tr.commit(t, "local change", ours, b)
	th = tr.commit(t, "upstream change", theirs, b)
	tr.checkout(t, "master", o)
	return b, o, th
}
