package main

import (
	"github.com/devicelab-dev/maestro-device/pkg/cli"
	"github.com/devicelab-dev/maestro-device/pkg/transport"
)

func main() {
	transport.InstallExitHook()
	cli.Execute()
}
