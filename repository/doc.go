// Package repository reconciles a local bare mirror with its remote.
//
// A mirror clone (`git clone --mirror`) is only performed once, on the
// first encounter of a repository. Every later run is an incremental
// `git fetch --all --prune`, which is far cheaper for large histories.
// Before fetching, the stored remote url is compared with the freshly
// computed desired url (including injected credentials) and refreshed if
// it differs, so rotated or newly supplied tokens take effect.
//
// All git operations shell out to the external git executable, the
// implementation borrows from utilitywarehouse/git-mirror.
package repository
