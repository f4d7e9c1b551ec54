package storecommon

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultConfigFile is used when no configuration file is provided.
const DefaultConfigFile = "storesrv.conf"

// InitLogger initializes the global logger with Unix millisecond
// timestamps.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
