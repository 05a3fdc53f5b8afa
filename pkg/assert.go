package pkg

import "github.com/rs/zerolog"

// AssertNoError logs and panics on err. Used for startup wiring where the
// process cannot continue.
func AssertNoError(logger zerolog.Logger, err error, msg string) {
	if err != nil {
		logger.Error().Err(err).Msg(msg)
		panic(err)
	}
}
