// https://github.com/usbarmory/rv6
//
// Copyright (c) The rv6 Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package fs

import "strings"

// skipElem splits the next path element off the front of path, returning it
// along with whatever remains. Leading slashes are skipped so repeated
// calls walk an absolute or relative path one component at a time, the way
// the original design's skipelem does.
func skipElem(path string) (elem, rest string, ok bool) {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}

	if path == "" {
		return "", "", false
	}

	i := strings.IndexByte(path, '/')
	if i < 0 {
		return path, "", true
	}

	return path[:i], path[i+1:], true
}

// namex resolves path to an inode, starting from fs's root if path is
// absolute or from cwd otherwise. If parent is true, it stops one component
// short and returns the parent directory inode along with the final
// component's name, without requiring that component to exist - this is
// nameiparent, used by callers (create, link, unlink) that need to find or
// place an entry rather than follow one.
func (fsys *FileSystem) namex(cwd Inode, path string, parent bool) (ip Inode, name string, err error) {
	var cur Inode

	if strings.HasPrefix(path, "/") {
		cur = fsys.store.Root()
	} else {
		invariant(cwd != nil, "fs: relative path lookup with nil cwd")
		cwd.Lock()
		cur = cwd
		cur.IncRef()
		cwd.Unlock()
	}

	elem, rest, ok := skipElem(path)
	if !ok {
		if parent {
			fsys.store.Put(cur)
			return nil, "", ErrNotFound
		}
		return cur, "", nil
	}

	for {
		if len(elem) > MaxPathComponent {
			fsys.store.Put(cur)
			return nil, "", ErrNameTooLong
		}

		cur.Lock()

		if cur.Type() != TypeDir {
			cur.Unlock()
			fsys.store.Put(cur)
			return nil, "", ErrNotDir
		}

		next, restAfter, hasMore := skipElem(rest)

		if parent && !hasMore {
			cur.Unlock()
			return cur, elem, nil
		}

		child, _, lookupErr := fsys.store.Dirlookup(cur, elem)
		cur.Unlock()

		if lookupErr != nil {
			fsys.store.Put(cur)
			return nil, "", ErrNotFound
		}

		fsys.store.Put(cur)
		cur = child

		if !hasMore {
			return cur, "", nil
		}

		elem, rest = next, restAfter
	}
}

// namei resolves path to its inode.
func (fsys *FileSystem) namei(cwd Inode, path string) (Inode, error) {
	ip, _, err := fsys.namex(cwd, path, false)
	return ip, err
}

// nameiparent resolves path to its parent directory inode and final
// component name, without requiring the final component to exist.
func (fsys *FileSystem) nameiparent(cwd Inode, path string) (Inode, string, error) {
	return fsys.namex(cwd, path, true)
}
