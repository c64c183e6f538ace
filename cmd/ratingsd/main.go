// Command ratingsd runs the media ratings backend and its operator tasks.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version string

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("ratingsd failed")
	}
}
