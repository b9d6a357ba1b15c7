/*
Package log provides structured logging built on zerolog: a global
logger configured once via Init, with small helpers for deriving
child loggers scoped to a symbolic ref or checksum.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	l := log.WithRef("archlinux/x86_64/base")
	l.Info().Msg("commit generated")
*/
package log
