package git

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// fileEntry is a blob in a tree, keyed by its slash separated path in fileSet
type fileEntry struct {
	Hash plumbing.Hash
	Mode filemode.FileMode
}

type fileSet map[string]fileEntry

func commitFiles(c *object.Commit) (fileSet, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	files := fileSet{}
	err = tree.Files().ForEach(func(f *object.File) error {
		files[f.Name] = fileEntry{Hash: f.Hash, Mode: f.Mode}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// mergeFileSets three-way merges per path. A path changed on one side only takes that side,
// identical changes on both sides are taken once and anything else is a conflict.
func mergeFileSets(base, local, remote fileSet) (fileSet, []string) {
	paths := map[string]struct{}{}
	for _, set := range []fileSet{base, local, remote} {
		for p := range set {
			paths[p] = struct{}{}
		}
	}

	merged := fileSet{}
	var conflicts []string
	for p := range paths {
		b, inBase := base[p]
		l, inLocal := local[p]
		r, inRemote := remote[p]

		switch {
		case inLocal == inRemote && l == r:
			if inLocal {
				merged[p] = l
			}
		case inLocal == inBase && l == b:
			if inRemote {
				merged[p] = r
			}
		case inRemote == inBase && r == b:
			if inLocal {
				merged[p] = l
			}
		default:
			conflicts = append(conflicts, p)
		}
	}

	// a file on one side and a directory of the same name on the other cannot both be kept
	for p := range merged {
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			if _, ok := merged[dir]; ok {
				conflicts = append(conflicts, p, dir)
			}
		}
	}
	for _, p := range conflicts {
		delete(merged, p)
	}

	sort.Strings(conflicts)
	return merged, slices.Compact(conflicts)
}

type treeNode struct {
	files map[string]fileEntry
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{
		files: map[string]fileEntry{},
		dirs:  map[string]*treeNode{},
	}
}

// writeTree stores files as nested tree objects and returns the root tree hash
func writeTree(s storer.EncodedObjectStorer, files fileSet) (plumbing.Hash, error) {
	root := newTreeNode()
	for p, entry := range files {
		node := root
		parts := strings.Split(p, "/")
		for _, dir := range parts[:len(parts)-1] {
			child, ok := node.dirs[dir]
			if !ok {
				child = newTreeNode()
				node.dirs[dir] = child
			}
			node = child
		}
		node.files[parts[len(parts)-1]] = entry
	}

	return root.store(s)
}

func (n *treeNode) store(s storer.EncodedObjectStorer) (plumbing.Hash, error) {
	tree := &object.Tree{}
	for name, entry := range n.files {
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: entry.Mode, Hash: entry.Hash})
	}
	for name, dir := range n.dirs {
		hash, err := dir.store(s)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}

	sort.Slice(tree.Entries, func(i, j int) bool {
		return entrySortKey(&tree.Entries[i]) < entrySortKey(&tree.Entries[j])
	})

	obj := s.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(obj)
}

// Git sorts tree entries as though directories have '/' appended to them.
func entrySortKey(e *object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// checkoutConflicted leaves refName at local and writes the merge result over its worktree.
// Conflicted paths get both versions between conflict markers.
func checkoutConflicted(repo *gogit.Repository, refName plumbing.ReferenceName, local, remote *object.Commit, localFiles, remoteFiles, merged fileSet, conflicts []string) error {
	if err := checkoutRef(repo, refName, local.Hash); err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	fs := wt.Filesystem

	// removals go first so a merged file never lands under a directory that is about to disappear
	for p := range localFiles {
		if _, ok := merged[p]; ok {
			continue
		}
		if err := removeFile(fs, p); err != nil {
			return err
		}
	}

	for p, entry := range merged {
		if current, ok := localFiles[p]; ok && current == entry {
			continue
		}
		if err := writeBlob(repo, fs, p, entry); err != nil {
			return err
		}
	}

	localName, remoteName := local.Hash.String()[:7], remote.Hash.String()[:7]
	for _, p := range conflicts {
		target, ok, err := conflictPath(fs, p, remoteName)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		ours, err := readBlob(repo, localFiles, p)
		if err != nil {
			return err
		}
		theirs, err := readBlob(repo, remoteFiles, p)
		if err != nil {
			return err
		}

		if err := removeFile(fs, target); err != nil {
			return err
		}
		content := conflictMarkers(localName, remoteName, ours, theirs)
		if err := util.WriteFile(fs, target, content, 0o644); err != nil {
			return err
		}
	}

	return nil
}

// parentDirs lists the directories above p, outermost first
func parentDirs(p string) []string {
	var dirs []string
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		dirs = append([]string{dir}, dirs...)
	}
	return dirs
}

func removeFile(fs billy.Filesystem, p string) error {
	if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// unblock clears the way for a file at p: a file standing in for one of its parent
// directories, or a directory at p itself, is removed
func unblock(fs billy.Filesystem, p string) error {
	for _, dir := range parentDirs(p) {
		fi, err := fs.Lstat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return fs.Remove(dir)
		}
	}

	fi, err := fs.Lstat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return util.RemoveAll(fs, p)
	}
	return nil
}

// unblockTree runs unblock for every file of a tree about to be checked out
func unblockTree(fs billy.Filesystem, files fileSet) error {
	for p := range files {
		if err := unblock(fs, p); err != nil {
			return err
		}
	}
	return nil
}

// conflictPath picks where the markers for a conflicted path go. A directory kept at p
// moves them to a "p~<remote>" sibling; a file kept in place of a parent directory leaves
// nowhere to write them and ok is false.
func conflictPath(fs billy.Filesystem, p, remoteName string) (string, bool, error) {
	for _, dir := range parentDirs(p) {
		fi, err := fs.Lstat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return p, true, nil
		}
		if err != nil {
			return "", false, err
		}
		if !fi.IsDir() {
			return "", false, nil
		}
	}

	for _, target := range []string{p, p + "~" + remoteName} {
		fi, err := fs.Lstat(target)
		if errors.Is(err, os.ErrNotExist) {
			return target, true, nil
		}
		if err != nil {
			return "", false, err
		}
		if !fi.IsDir() {
			return target, true, nil
		}
	}
	return "", false, nil
}

func readBlob(repo *gogit.Repository, files fileSet, p string) ([]byte, error) {
	entry, ok := files[p]
	if !ok {
		return nil, nil
	}

	blob, err := repo.BlobObject(entry.Hash)
	if err != nil {
		return nil, err
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func writeBlob(repo *gogit.Repository, fs billy.Filesystem, p string, entry fileEntry) error {
	content, err := readBlob(repo, fileSet{p: entry}, p)
	if err != nil {
		return err
	}

	if err := unblock(fs, p); err != nil {
		return err
	}
	if err := removeFile(fs, p); err != nil {
		return err
	}
	if entry.Mode == filemode.Symlink {
		return fs.Symlink(string(content), p)
	}

	mode, err := entry.Mode.ToOSFileMode()
	if err != nil {
		return err
	}
	return util.WriteFile(fs, p, content, mode)
}

func conflictMarkers(localName, remoteName string, ours, theirs []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<<<<<<< %s\n", localName)
	writeWithNewline(&buf, ours)
	buf.WriteString("=======\n")
	writeWithNewline(&buf, theirs)
	fmt.Fprintf(&buf, ">>>>>>> %s\n", remoteName)
	return buf.Bytes()
}

func writeWithNewline(buf *bytes.Buffer, b []byte) {
	buf.Write(b)
	if len(b) > 0 && b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
}
