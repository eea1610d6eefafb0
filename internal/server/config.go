package server

import (
	"github.com/raysh454/patternshield/internal/app"
	"github.com/raysh454/patternshield/internal/logging"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server. Empty uses
	// AppConfig.Server.ListenAddr.
	ListenAddr string

	AppConfig *app.Config
	Logger    logging.Logger

	// AppOptions are passed to app.NewApplication, e.g. to inject a web
	// client in tests.
	AppOptions []app.Option
}
