package util

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Trace 记录一段操作的耗时，用法：defer util.Trace("process")()
func Trace(msg string) func() {
	start := time.Now()
	log.Debug().Str("step", msg).Msg("start")
	return func() {
		log.Info().Str("step", msg).Dur("elapsed", time.Since(start)).Msg("done")
	}
}
