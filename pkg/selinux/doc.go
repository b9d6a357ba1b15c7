/*
Package selinux resolves file_contexts labels for the Commit Generator.

Load parses a file_contexts table (the same format shipped by SELinux
policy packages: one "pattern [-class] context" line per rule, longest
pattern wins on overlap) and Label looks up the context for a virtual
path and file class. github.com/opencontainers/selinux is used only to
ask the host whether SELinux is enforcing at all — actual path-to-context
matching has no ecosystem library in this pack, so it is implemented
directly against the file_contexts text format.
*/
package selinux
