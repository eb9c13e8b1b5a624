package git

import (
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_Clean(t *testing.T) {
	tr := setupTestRepo(t)
	_, ours, theirs := tr.diverged(t,
		map[string]string{"src/editor.c": "one\ntwo\nthree\n", "README.md": "cano\n"},
		map[string]string{"src/editor.c": "ONE\ntwo\nthree\n", "README.md": "cano\n", "local.txt": "mine\n"},
		map[string]string{"src/editor.c": "one\ntwo\nTHREE\n", "README.md": "cano\n", "src/lex.c": "lex\n"},
	)

	result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
	require.NoError(t, err)
	require.True(t, result.Clean())
	require.NotEmpty(t, result.Commit)

	tip := tr.branchHash(t, "master")
	assert.Equal(t, result.Commit, tip.String())

	c, err := tr.repo.repo.CommitObject(tip)
	require.NoError(t, err)
	assert.Equal(t, ours, c.ParentHashes[0])
	assert.Equal(t, theirs, c.ParentHashes[1])
	assert.Equal(t, "Merge: "+theirs.String()+" into "+ours.String(), c.Message)
	assert.Equal(t, "Test Runner", c.Author.Name)

	want := map[string]string{
		"src/editor.c": "ONE\ntwo\nTHREE\n",
		"README.md":    "cano\n",
		"local.txt":    "mine\n",
		"src/lex.c":    "lex\n",
	}
	assert.Equal(t, want, tr.commitFilesAt(t, tip))
	for p, content := range want {
		assert.Equal(t, content, tr.readFile(t, p), p)
	}

	lines := tr.reflogLines(t, "refs/heads/master")
	assert.Contains(t, lines[len(lines)-1], "\tmerge "+theirs.String()+": Merge made by canoup.")

	inProgress, _, err := tr.repo.MergeInProgress()
	require.NoError(t, err)
	assert.False(t, inProgress)
}

func TestMerge_Conflict(t *testing.T) {
	tr := setupTestRepo(t)
	_, ours, theirs := tr.diverged(t,
		map[string]string{"config.h": "#define TAB 4\n", "other.c": "x\n"},
		map[string]string{"config.h": "#define TAB 2\n", "other.c": "x\n"},
		map[string]string{"config.h": "#define TAB 8\n", "other.c": "y\n"},
	)

	result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
	require.NoError(t, err)
	assert.False(t, result.Clean())
	assert.Empty(t, result.Commit)
	assert.Equal(t, []string{"config.h"}, result.Conflicts)

	// The branch stays at the local tip.
	assert.Equal(t, ours, tr.branchHash(t, "master"))

	want := "<<<<<<< HEAD\n#define TAB 2\n=======\n#define TAB 8\n>>>>>>> " + theirs.String()[:7] + "\n"
	assert.Equal(t, want, tr.readFile(t, "config.h"))

	// Non-conflicting upstream changes still land in the working tree.
	assert.Equal(t, "y\n", tr.readFile(t, "other.c"))

	inProgress, mergeHead, err := tr.repo.MergeInProgress()
	require.NoError(t, err)
	assert.True(t, inProgress)
	assert.Equal(t, theirs.String(), mergeHead)

	msg := tr.gitFile(t, "MERGE_MSG")
	assert.True(t, strings.HasPrefix(msg, "Merge: "+theirs.String()+" into "+ours.String()))
	assert.Contains(t, msg, "# Conflicts:\n#\tconfig.h\n")
}

func TestMerge_ModifyDelete(t *testing.T) {
	tr := setupTestRepo(t)
	_, ours, theirs := tr.diverged(t,
		map[string]string{"old.c": "legacy\n", "keep": "k\n"},
		map[string]string{"keep": "k\n"},
		map[string]string{"old.c": "legacy fixed\n", "keep": "k\n"},
	)

	result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"old.c"}, result.Conflicts)
	assert.Equal(t, ours, tr.branchHash(t, "master"))

	content := tr.readFile(t, "old.c")
	assert.Contains(t, content, "<<<<<<< HEAD\n=======\nlegacy fixed\n>>>>>>> ")
}

func TestMerge_CleanDeletion(t *testing.T) {
	tr := setupTestRepo(t)
	_, _, theirs := tr.diverged(t,
		map[string]string{"a": "a\n", "b": "b\n"},
		map[string]string{"a": "a local\n", "b": "b\n"},
		map[string]string{"a": "a\n"},
	)

	result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
	require.NoError(t, err)
	require.True(t, result.Clean())

	files := tr.commitFilesAt(t, tr.branchHash(t, "master"))
	assert.Equal(t, map[string]string{"a": "a local\n"}, files)
	assert.False(t, tr.fileExists(t, "b"))
}

func TestMerge_BinaryConflict(t *testing.T) {
	tr := setupTestRepo(t)
	_, ours, theirs := tr.diverged(t,
		map[string]string{"logo.png": "\x89PNG\x00base"},
		map[string]string{"logo.png": "\x89PNG\x00ours"},
		map[string]string{"logo.png": "\x89PNG\x00theirs"},
	)

	result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"logo.png"}, result.Conflicts)
	assert.Equal(t, ours, tr.branchHash(t, "master"))
	assert.Equal(t, "\x89PNG\x00ours", tr.readFile(t, "logo.png"))
}

func TestMerge_SameChangeOnBothSides(t *testing.T) {
	tr := setupTestRepo(t)
	_, _, theirs := tr.diverged(t,
		map[string]string{"a": "1\n"},
		map[string]string{"a": "2\n", "mine": "m\n"},
		map[string]string{"a": "2\n"},
	)

	result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
	require.NoError(t, err)
	require.True(t, result.Clean())
	assert.Equal(t, map[string]string{"a": "2\n", "mine": "m\n"},
		tr.commitFilesAt(t, tr.branchHash(t, "master")))
}

func TestMerge_NoMergeBase(t *testing.T) {
	tr := setupTestRepo(t)
	local := tr.commit(t, "local", map[string]string{"a": "1\n"})
	orphan := tr.commit(t, "orphan", map[string]string{"b": "2\n"})
	tr.checkout(t, "master", local)

	_, err := tr.repo.Merge(tr.ctx, "master", orphan.String())
	assert.ErrorIs(t, err, ErrNoMergeBase)
}

func TestMerge_MissingBranch(t *testing.T) {
	tr := setupTestRepo(t)
	c := tr.commit(t, "c", map[string]string{"a": "1\n"})

	_, err := tr.repo.Merge(tr.ctx, "master", c.String())
	assert.ErrorIs(t, err, ErrBranchMissing)
}

func TestUnionPaths(t *testing.T) {
	a := map[string]*treeEntry{"x": nil, "b": nil}
	b := map[string]*treeEntry{"a": nil, "x": nil}
	assert.Equal(t, []string{"a", "b", "x"}, unionPaths(a, b, nil))
}

func TestMerge_FileDirectoryClash(t *testing.T) {
	tests := []struct {
		name      string
		ours      map[string]string
		theirs    map[string]string
		wantFiles map[string]string
		wantGone  []string
	}{
		{
			name:      "local directory, upstream file",
			ours:      map[string]string{"README": "cano\n", "d/f": "nested\n"},
			theirs:    map[string]string{"README": "cano\n", "d": "flat\n", "other": "o\n"},
			wantFiles: map[string]string{"d/f": "nested\n", "other": "o\n"},
		},
		{
			name:      "local file, upstream directory",
			ours:      map[string]string{"README": "cano\n", "d": "flat\n"},
			theirs:    map[string]string{"README": "cano\n", "d/f": "nested\n", "other": "o\n"},
			wantFiles: map[string]string{"d": "flat\n", "other": "o\n"},
			wantGone:  []string{"d/f"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := setupTestRepo(t)
			_, ours, theirs := tr.diverged(t, map[string]string{"README": "cano\n"}, tt.ours, tt.theirs)

			result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
			require.NoError(t, err)
			assert.Empty(t, result.Commit)
			assert.Equal(t, []string{"d", "d/f"}, result.Conflicts)

			assert.Equal(t, ours, tr.branchHash(t, "master"), "branch must not move")
			for p, content := range tt.wantFiles {
				assert.Equal(t, content, tr.readFile(t, p), p)
			}
			for _, p := range tt.wantGone {
				assert.False(t, tr.fileExists(t, p), p)
			}

			assert.Contains(t, tr.gitFile(t, "MERGE_MSG"), "# Conflicts:\n#\td\n#\td/f\n")
		})
	}
}

func TestMerge_ClashWithModifyDelete(t *testing.T) {
	tr := setupTestRepo(t)
	_, ours, theirs := tr.diverged(t,
		map[string]string{"d": "flat\n"},
		map[string]string{"d/f": "nested\n"},
		map[string]string{"d": "flat, edited\n"},
	)

	result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "d/f"}, result.Conflicts)
	assert.Equal(t, ours, tr.branchHash(t, "master"))
	assert.Equal(t, "nested\n", tr.readFile(t, "d/f"))
}

func TestMerge_FileModes(t *testing.T) {
	const script = "run.sh"

	tests := []struct {
		name         string
		ours         string
		oursMode     filemode.FileMode
		theirs       string
		theirsMode   filemode.FileMode
		wantConflict bool
		wantContent  string
		wantMode     filemode.FileMode
	}{
		{
			name: "exec bit locally, content upstream",
			ours: "a\n", oursMode: filemode.Executable,
			theirs: "b\n", theirsMode: filemode.Regular,
			wantContent: "b\n", wantMode: filemode.Executable,
		},
		{
			name: "content locally, exec bit upstream",
			ours: "b\n", oursMode: filemode.Regular,
			theirs: "a\n", theirsMode: filemode.Executable,
			wantContent: "b\n", wantMode: filemode.Executable,
		},
		{
			name: "both edit content, one sets exec bit",
			ours: "local\na\n", oursMode: filemode.Regular,
			theirs: "a\nupstream\n", theirsMode: filemode.Executable,
			wantContent: "local\na\nupstream\n", wantMode: filemode.Executable,
		},
		{
			name: "modes changed differently",
			ours: "a\n", oursMode: filemode.Executable,
			theirs: "a\n", theirsMode: filemode.Deprecated,
			wantConflict: true, wantContent: "a\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := setupTestRepo(t)
			base := tr.commit(t, "base", map[string]string{script: "a\n"})
			ours := tr.commitWithModes(t, "local", map[string]string{script: tt.ours},
				map[string]filemode.FileMode{script: tt.oursMode}, base)
			theirs := tr.commitWithModes(t, "upstream", map[string]string{script: tt.theirs},
				map[string]filemode.FileMode{script: tt.theirsMode}, base)
			tr.checkout(t, "master", ours)

			result, err := tr.repo.Merge(tr.ctx, "master", theirs.String())
			require.NoError(t, err)

			if tt.wantConflict {
				assert.Equal(t, []string{script}, result.Conflicts)
				assert.Equal(t, ours, tr.branchHash(t, "master"))
				assert.Equal(t, tt.wantContent, tr.readFile(t, script), "mode conflicts carry no markers")
				assert.Contains(t, tr.gitFile(t, "MERGE_MSG"), "#\t"+script+"\n")
				return
			}

			require.True(t, result.Clean())
			tip := tr.branchHash(t, "master")
			assert.Equal(t, map[string]string{script: tt.wantContent}, tr.commitFilesAt(t, tip))
			assert.Equal(t, tt.wantMode, tr.modesAt(t, tip)[script])
		})
	}
}

func TestPickMergeBase(t *testing.T) {
	at := func(hash string, minute int) *object.Commit {
		return &object.Commit{
			Hash:      plumbing.NewHash(hash),
			Committer: object.Signature{When: time.Date(2024, 5, 1, 12, minute, 0, 0, time.UTC)},
		}
	}

	older := at("1111111111111111111111111111111111111111", 1)
	newer := at("2222222222222222222222222222222222222222", 2)
	tieLow := at("0000000000000000000000000000000000000003", 2)

	assert.Same(t, newer, pickMergeBase([]*object.Commit{older, newer}))
	assert.Same(t, newer, pickMergeBase([]*object.Commit{newer, older}))
	assert.Same(t, tieLow, pickMergeBase([]*object.Commit{newer, tieLow}))
	assert.Same(t, tieLow, pickMergeBase([]*object.Commit{tieLow, newer}))
	assert.Same(t, older, pickMergeBase([]*object.Commit{older}))
}

func TestDirectoryClashes(t *testing.T) {
	leaf := &mergedPath{entry: &treeEntry{Mode: filemode.Regular}}
	merged := map[string]*mergedPath{
		"a":         leaf,
		"a/b/c":     leaf,
		"deleted":   {entry: nil},
		"deleted/x": leaf,
		"ok/y":      leaf,
	}
	assert.Equal(t, []string{"a", "a/b/c"}, directoryClashes(merged))
}
