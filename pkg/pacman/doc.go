/*
Package pacman is the boundary to the host package manager: it parses
the pacman local database format and invokes pacman/pacstrap as external
processes, per the external-interfaces section of the component design.
Nothing in this package is retried on failure; subprocess failures carry
both captured stdout and stderr verbatim.
*/
package pacman
