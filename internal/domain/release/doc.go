// Package release holds the Build Manifest: the immutable description of one
// release (version tag, source archive location and checksum, optional
// per-platform binary checksums).
//
// A Manifest can only be obtained through New or Load, both of which validate
// every field, so downstream stages never see a malformed tag, URL or digest.
package release
