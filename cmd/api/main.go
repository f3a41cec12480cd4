// Command api serves the storefront HTTP API and the gRPC health endpoint.
package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/Additional-Code/gobady/internal/app"
)

func main() {
	fx.New(app.Module, fx.StopTimeout(15*time.Second)).Run()
}
