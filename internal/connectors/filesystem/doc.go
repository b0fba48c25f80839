// Package filesystem implements a connector over a local directory of
// query files. It walks the tree for a full sync and uses fsnotify to
// report changes while watching. Hidden files and directories are
// skipped.
package filesystem
